// Package usecase models the responses of the backend use cases and the catalog of use cases the apps call.
package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ErrorType discriminates failed responses.
type ErrorType string

const (
	ErrorTypeNotFound       ErrorType = "NotFoundError"
	ErrorTypeValidation     ErrorType = "ValidationError"
	ErrorTypeConflict       ErrorType = "ConflictError"
	ErrorTypeAuthentication ErrorType = "AuthenticationError"
	ErrorTypeAuth           ErrorType = "AuthError" // older backends
	ErrorTypeUnknown        ErrorType = "UnknownError"
	ErrorTypeInternal       ErrorType = "InternalError"
)

// Status is the value of the "success" tag.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusProgress        Status = "progress"
	StatusPartial         Status = "partial"
	StatusPartialProgress Status = "partial-progress"
)

var ErrInvalidResponse = errors.New("invalid use case response")

// Context holds extra error details, e.g. the "digest" of an unexpected failure.
type Context map[string]interface{}

type ErrorData struct {
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Type      ErrorType `json:"errorType"`
	Context   Context   `json:"context,omitempty"`
}

func (e *ErrorData) UnmarshalJSON(b []byte) error {
	var raw struct {
		Operation string    `json:"operation"`
		Message   string    `json:"message"`
		ErrorType ErrorType `json:"errorType"`
		Type      ErrorType `json:"type"`
		Context   Context   `json:"context"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = ErrorData{Operation: raw.Operation, Message: raw.Message, Type: raw.ErrorType, Context: raw.Context}
	if e.Type == "" {
		e.Type = raw.Type
	}
	return nil
}

func (e ErrorData) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Operation, e.Type, e.Message)
}

// Response is the result of a use case.
// Data holds the raw payload of successful (and in-progress or partial) responses; Error is only set on failures.
type Response struct {
	Status Status
	Data   json.RawMessage
	Error  *ErrorData
}

// Success builds a successful Response carrying data.
func Success(data interface{}) (Response, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Response{}, errors.Wrap(err, "marshalling response data")
	}
	return Response{Status: StatusSuccess, Data: b}, nil
}

// Failure builds a failed Response.
func Failure(typ ErrorType, operation, message string, ctx ...Context) Response {
	ed := &ErrorData{Operation: operation, Message: message, Type: typ}
	if len(ctx) > 0 {
		ed.Context = ctx[0]
	}
	return Response{Status: StatusError, Error: ed}
}

func (r Response) Succeeded() bool { return r.Status == StatusSuccess }
func (r Response) Failed() bool    { return r.Status == StatusError }

// Decode unmarshals the payload of the response into v.
func (r Response) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return errors.Wrap(ErrInvalidResponse, "no data")
	}
	return json.Unmarshal(r.Data, v)
}

type wireResponse struct {
	Success json.RawMessage `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var w wireResponse
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	status, err := parseStatus(w.Success)
	if err != nil {
		return err
	}

	*r = Response{Status: status}
	if status != StatusError {
		if len(w.Data) > 0 && !bytes.Equal(w.Data, []byte("null")) {
			r.Data = w.Data
		}
		return nil
	}

	r.Error = new(ErrorData)
	if len(w.Data) > 0 && !bytes.Equal(w.Data, []byte("null")) {
		if err := json.Unmarshal(w.Data, r.Error); err != nil {
			return errors.Wrap(err, "decoding error data")
		}
	}
	return nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	var w wireResponse
	switch r.Status {
	case StatusSuccess:
		w.Success = json.RawMessage("true")
	case StatusError:
		w.Success = json.RawMessage("false")
	case StatusProgress, StatusPartial, StatusPartialProgress:
		w.Success, _ = json.Marshal(string(r.Status))
	default:
		return nil, errors.Wrapf(ErrInvalidResponse, "unknown status %q", r.Status)
	}

	if r.Status == StatusError {
		ed := ErrorData{}
		if r.Error != nil {
			ed = *r.Error
		}
		b, err := json.Marshal(ed)
		if err != nil {
			return nil, err
		}
		w.Data = b
	} else {
		w.Data = r.Data
	}
	return json.Marshal(w)
}

func parseStatus(raw json.RawMessage) (Status, error) {
	if len(raw) == 0 {
		return "", errors.Wrap(ErrInvalidResponse, "missing success tag")
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err == nil {
		if ok {
			return StatusSuccess, nil
		}
		return StatusError, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.Wrapf(ErrInvalidResponse, "success tag %s", raw)
	}
	switch st := Status(s); st {
	case StatusProgress, StatusPartial, StatusPartialProgress:
		return st, nil
	}
	return "", errors.Wrapf(ErrInvalidResponse, "success tag %q", s)
}

// Meta is forwarded to the backend along with every use case request.
type Meta struct {
	IDToken   string
	SessionID string
	Locale    string
	Runtime   string
}

// Executor runs use cases against the backend.
// Failed use cases come back as a failed Response; the error is reserved for transport failures.
type Executor interface {
	Execute(ctx context.Context, uc UseCase, input json.RawMessage, meta Meta) (Response, error)
}
