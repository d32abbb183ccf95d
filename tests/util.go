package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/draft"
	"github.com/maany-shr/eclass/core/usecase"
)

// Logger records log entries instead of printing them.
type Logger struct {
	mu      sync.Mutex
	Entries []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	l.Entries = append(l.Entries, level+": "+msg)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

func (l *Logger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Entries...)
}

// Call is a use case execution seen by Executor.
type Call struct {
	UseCase usecase.UseCase
	Input   json.RawMessage
	Meta    usecase.Meta
}

// Executor answers use cases from canned responses keyed by use case name.
type Executor struct {
	mu        sync.Mutex
	Responses map[string]usecase.Response
	Errors    map[string]error
	Calls     []Call
}

var _ usecase.Executor = (*Executor)(nil)

func NewExecutor() *Executor {
	return &Executor{Responses: make(map[string]usecase.Response), Errors: make(map[string]error)}
}

// Succeed registers a successful response carrying data for name.
func (e *Executor) Succeed(t *testing.T, name string, data interface{}) {
	t.Helper()
	resp, err := usecase.Success(data)
	if err != nil {
		t.Fatalf("Succeed(%s) failed: %v", name, err)
	}
	e.mu.Lock()
	e.Responses[name] = resp
	e.mu.Unlock()
}

func (e *Executor) Execute(_ context.Context, uc usecase.UseCase, input json.RawMessage, meta usecase.Meta) (usecase.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, Call{UseCase: uc, Input: input, Meta: meta})
	if err, ok := e.Errors[uc.Name]; ok {
		return usecase.Response{}, err
	}
	if resp, ok := e.Responses[uc.Name]; ok {
		return resp, nil
	}
	return usecase.Failure(usecase.ErrorTypeNotFound, uc.Name, fmt.Sprintf("no response for %s", uc.Name)), nil
}

// CallsTo returns the executions of the use case name.
func (e *Executor) CallsTo(name string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var calls []Call
	for _, c := range e.Calls {
		if c.UseCase.Name == name {
			calls = append(calls, c)
		}
	}
	return calls
}

func CreateDraft(t *testing.T, repo draft.Repository, owner, key, original, current string, updatedAt ...time.Time) draft.Draft {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(updatedAt) > 0 {
		tstamp = updatedAt[0].UTC()
	}
	d, err := repo.SaveDraft(context.Background(), draft.Draft{
		Owner:     owner,
		Key:       key,
		Original:  json.RawMessage(original),
		Current:   json.RawMessage(current),
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateDraft() failed: %v", err)
	}
	return d
}
