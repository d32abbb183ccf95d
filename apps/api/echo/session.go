package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/session"
)

type sessionApi struct {
	validate *validator.Validate
	monitor  *session.Monitor
}

func registerSessionAPI(g *echo.Group, opts *Options) {
	api := sessionApi{validate: opts.Validate, monitor: opts.Monitor}

	sg := g.Group("/sessions/status")
	sg.GET("", api.status)
	sg.POST("", api.batchStatus)
	sg.GET("/stream", api.stream)
}

type (
	// SessionRef is a coaching session whose status is requested.
	SessionRef struct {
		ID        string `json:"id" validate:"required"`
		StartTime string `json:"startTime" validate:"required,rfc3339"`
	}

	BatchStatusRequest struct {
		Sessions []SessionRef `json:"sessions" validate:"required,max=200,dive"`
	}

	SessionStatus struct {
		ID string `json:"id"`
		session.Result
	}

	BatchStatusResponse struct {
		Sessions []SessionStatus `json:"sessions"`
	}
)

func (r *BatchStatusRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func startParam(ctx echo.Context) (time.Time, error) {
	raw := ctx.QueryParam("start")
	if raw == "" {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "start", Error: "this field is required"})
	}
	start, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "start", Error: "start must be an RFC 3339 date-time"})
	}
	return start, nil
}

func (api *sessionApi) status(ctx echo.Context) error {
	start, err := startParam(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, session.Now(start))
}

func (api *sessionApi) batchStatus(ctx echo.Context) error {
	var data BatchStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchStatusRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res := BatchStatusResponse{Sessions: make([]SessionStatus, 0, len(data.Sessions))}
	for _, s := range data.Sessions {
		start, _ := time.Parse(time.RFC3339, s.StartTime) // validated
		res.Sessions = append(res.Sessions, SessionStatus{ID: s.ID, Result: session.Now(start)})
	}
	return ctx.JSON(http.StatusOK, res)
}

// stream pushes the status of a session as server-sent events until the client goes away.
func (api *sessionApi) stream(ctx echo.Context) error {
	start, err := startParam(ctx)
	if err != nil {
		return err
	}

	w := ctx.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for res := range api.monitor.Watch(ctx.Request().Context(), start) {
		b, err := json.Marshal(res)
		if err != nil {
			return errors.Wrap(err, "encoding session status")
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", b); err != nil {
			return nil // client gone
		}
		w.Flush()
	}
	return nil
}
