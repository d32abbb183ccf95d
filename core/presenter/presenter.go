// Package presenter turns use case responses into view-models.
package presenter

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/usecase"
	"github.com/maany-shr/eclass/core/viewmodel"
)

// ErrorModes maps the error type of a failed response to the mode it is rendered with.
// Any type missing from the table renders as viewmodel.ModeKaboom.
var ErrorModes = map[usecase.ErrorType]viewmodel.Mode{
	usecase.ErrorTypeNotFound:       viewmodel.ModeNotFound,
	usecase.ErrorTypeValidation:     viewmodel.ModeInvalid,
	usecase.ErrorTypeConflict:       viewmodel.ModeConflict,
	usecase.ErrorTypeAuthentication: viewmodel.ModeUnauthenticated,
	usecase.ErrorTypeAuth:           viewmodel.ModeUnauthenticated,
}

const digestKey = "digest"

var newDigest = func() string { return uuid.New().String() } // mockable

// ModeFor returns the mode of an error type.
func ModeFor(t usecase.ErrorType) viewmodel.Mode {
	if mode, ok := ErrorModes[t]; ok {
		return mode
	}
	return viewmodel.ModeKaboom
}

// SuccessFunc shapes the payload of a successful response.
type SuccessFunc func(data json.RawMessage) (interface{}, error)

type Option func(*Presenter)

// WithSuccess shapes the success data with fn.
func WithSuccess(fn SuccessFunc) Option {
	return func(p *Presenter) { p.success = fn }
}

// Typed decodes the success payload into T before handing it to fn.
func Typed[T any](fn func(T) (interface{}, error)) Option {
	return WithSuccess(func(data json.RawMessage) (interface{}, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "decoding success data")
		}
		return fn(v)
	})
}

// WithErrorMode overrides the mode of one error type.
func WithErrorMode(t usecase.ErrorType, mode viewmodel.Mode) Option {
	return func(p *Presenter) { p.errorModes[t] = mode }
}

// BusinessErrors renders every known error type as viewmodel.ModeError; unknown failures stay kaboom.
func BusinessErrors() Option {
	return func(p *Presenter) {
		for t := range ErrorModes {
			p.errorModes[t] = viewmodel.ModeError
		}
		p.errorModes[usecase.ErrorTypeInternal] = viewmodel.ModeError
	}
}

// WithViewModelSetter calls fn with every view-model presented.
func WithViewModelSetter(fn func(viewmodel.ViewModel)) Option {
	return func(p *Presenter) { p.setViewModel = fn }
}

// Presenter presents the responses of one use case.
type Presenter struct {
	useCase      usecase.UseCase
	success      SuccessFunc
	errorModes   map[usecase.ErrorType]viewmodel.Mode
	setViewModel func(viewmodel.ViewModel)
}

func New(uc usecase.UseCase, opts ...Option) *Presenter {
	p := &Presenter{
		useCase:    uc,
		errorModes: make(map[usecase.ErrorType]viewmodel.Mode, len(ErrorModes)),
	}
	for t, mode := range ErrorModes {
		p.errorModes[t] = mode
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Presenter) UseCase() usecase.UseCase { return p.useCase }

func (p *Presenter) successMode() viewmodel.Mode {
	if p.useCase.Kind == usecase.KindMutation {
		return viewmodel.ModeSuccess
	}
	return viewmodel.ModeDefault
}

func (p *Presenter) errorMode(t usecase.ErrorType) viewmodel.Mode {
	if mode, ok := p.errorModes[t]; ok {
		return mode
	}
	return viewmodel.ModeKaboom
}

func (p *Presenter) defaultMessage() string {
	return "Failed to " + core.WordsOf(p.useCase.Name)
}

// Present maps resp to a view-model.
func (p *Presenter) Present(resp usecase.Response) viewmodel.ViewModel {
	var vm viewmodel.ViewModel

	switch resp.Status {
	case usecase.StatusSuccess:
		data, err := p.shape(resp.Data)
		if err != nil {
			vm = p.kaboom(err)
			break
		}
		vm = viewmodel.ViewModel{Mode: p.successMode(), Data: data}
	case usecase.StatusProgress:
		vm = viewmodel.ViewModel{Mode: viewmodel.ModeProgress, Data: raw(resp.Data)}
	case usecase.StatusPartial, usecase.StatusPartialProgress:
		vm = viewmodel.ViewModel{Mode: viewmodel.ModePartial, Data: raw(resp.Data)}
	default:
		ed := usecase.ErrorData{}
		if resp.Error != nil {
			ed = *resp.Error
		}
		vm = viewmodel.ViewModel{Mode: p.errorMode(ed.Type), Data: p.errorData(ed)}
	}

	if p.setViewModel != nil {
		p.setViewModel(vm)
	}
	return vm
}

// PresentFailure presents a use case that could not be run at all, e.g. when the backend is unreachable.
// The kaboom carries a fresh digest in its context so the failure can be found in the logs.
func (p *Presenter) PresentFailure(err error) viewmodel.ViewModel {
	vm := p.kaboom(err)
	if p.setViewModel != nil {
		p.setViewModel(vm)
	}
	return vm
}

func (p *Presenter) kaboom(err error) viewmodel.ViewModel {
	ctx := map[string]interface{}{digestKey: newDigest()}
	if err != nil {
		ctx["cause"] = errors.Cause(err).Error()
	}
	return viewmodel.ViewModel{
		Mode: viewmodel.ModeKaboom,
		Data: viewmodel.ErrorData{
			Message:   p.defaultMessage(),
			Operation: p.useCase.Name,
			Context:   ctx,
		},
	}
}

func (p *Presenter) shape(data json.RawMessage) (interface{}, error) {
	if p.success == nil {
		return raw(data), nil
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return p.success(data)
}

func (p *Presenter) errorData(ed usecase.ErrorData) viewmodel.ErrorData {
	out := viewmodel.ErrorData{
		Message:   ed.Message,
		Operation: ed.Operation,
		Context:   make(map[string]interface{}, len(ed.Context)),
	}
	if out.Message == "" {
		out.Message = p.defaultMessage()
	}
	if out.Operation == "" {
		out.Operation = p.useCase.Name
	}
	for k, v := range ed.Context {
		out.Context[k] = v
	}
	return out
}

// Digest returns the digest of a kaboom view-model, if any.
func Digest(vm viewmodel.ViewModel) string {
	ed, ok := vm.Data.(viewmodel.ErrorData)
	if !ok {
		return ""
	}
	d, _ := ed.Context[digestKey].(string)
	return d
}

func raw(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
