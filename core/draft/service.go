// Package draft keeps the forms users are editing on the server.
package draft

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/formstate"
)

var (
	ErrNotFound = errors.New("draft not found")

	errEmptyDraft  = core.NewValidationError(nil, core.FieldError{Field: "value", Error: "this field is required"})
	errInvalidJSON = core.NewValidationError(nil, core.FieldError{Field: "value", Error: "must be valid JSON"})
	errInvalidKey  = core.NewValidationError(nil, core.FieldError{
		Field: "key", Error: "1 to 128 letters, digits, '_', '-', '.' or ':' are allowed",
	})

	keyRegex = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

	nowFunc = time.Now // mockable

	// DefaultOrdering lists the most recently edited drafts first.
	DefaultOrdering = core.Ordering{Field: "updated_at"}
)

type Repository interface {
	GetDraft(ctx context.Context, owner, key string) (Draft, error)
	// SaveDraft inserts or updates d.
	SaveDraft(ctx context.Context, d Draft) (Draft, error)
	DeleteDraft(ctx context.Context, owner, key string) error
	ListDrafts(ctx context.Context, owner string, ordering ...core.Ordering) ([]Draft, error)
}

type Service struct {
	repo    Repository
	unsaved *formstate.UnsavedChanges
}

func NewService(repo Repository, unsaved *formstate.UnsavedChanges) *Service {
	return &Service{repo: repo, unsaved: unsaved}
}

// registryPrefix escapes owner so that no owner prefix is a prefix of another owner's keys.
func registryPrefix(owner string) string { return url.PathEscape(owner) + "/" }

func registryKey(owner, key string) string { return registryPrefix(owner) + key }

func (svc *Service) tracker(d Draft) (*formstate.Tracker[interface{}], error) {
	original, err := decode(d.Original)
	if err != nil {
		return nil, errors.Wrap(err, "decoding original")
	}
	current, err := decode(d.Current)
	if err != nil {
		return nil, errors.Wrap(err, "decoding current")
	}
	return formstate.Resume(original, current,
		formstate.WithUnloadWarning[interface{}](svc.unsaved, registryKey(d.Owner, d.Key)),
	), nil
}

func (svc *Service) persist(ctx context.Context, d Draft, tr *formstate.Tracker[interface{}]) (State, error) {
	var err error
	if d.Original, err = json.Marshal(tr.Original()); err != nil {
		return State{}, errors.Wrap(err, "encoding original")
	}
	if d.Current, err = json.Marshal(tr.Value()); err != nil {
		return State{}, errors.Wrap(err, "encoding current")
	}
	d.UpdatedAt = nowFunc().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}

	d, err = svc.repo.SaveDraft(ctx, d)
	if err != nil {
		return State{}, errors.Wrap(err, "saving draft")
	}
	return stateOf(d, tr), nil
}

// Open returns the draft stored under key, creating it from od when missing.
// A value in od is applied on top of the (new or existing) draft.
func (svc *Service) Open(ctx context.Context, owner, key string, od OpenDraft) (State, error) {
	if !keyRegex.MatchString(key) {
		return State{}, errInvalidKey
	}
	if err := od.Validate(); err != nil {
		return State{}, err
	}

	d, err := svc.repo.GetDraft(ctx, owner, key)
	switch {
	case err == nil:
		if len(od.Value) == 0 {
			tr, err := svc.tracker(d)
			if err != nil {
				return State{}, err
			}
			return stateOf(d, tr), nil
		}
		return svc.Update(ctx, owner, key, od.Value)
	case errors.Cause(err) != ErrNotFound:
		return State{}, errors.Wrap(err, "getting draft")
	}

	initial := od.Initial
	if len(initial) == 0 {
		initial = od.Value
	}
	originalVal, err := decode(initial)
	if err != nil {
		return State{}, errInvalidJSON
	}
	tr := formstate.New(originalVal, formstate.WithUnloadWarning[interface{}](svc.unsaved, registryKey(owner, key)))
	if len(od.Value) > 0 {
		val, err := decode(od.Value)
		if err != nil {
			return State{}, errInvalidJSON
		}
		tr.SetValue(val)
	}
	return svc.persist(ctx, Draft{Owner: owner, Key: key}, tr)
}

func (svc *Service) Get(ctx context.Context, owner, key string) (State, error) {
	d, err := svc.repo.GetDraft(ctx, owner, key)
	if err != nil {
		return State{}, err
	}
	tr, err := svc.tracker(d)
	if err != nil {
		return State{}, err
	}
	return stateOf(d, tr), nil
}

func (svc *Service) List(ctx context.Context, owner string, ordering ...core.Ordering) ([]State, error) {
	if len(ordering) == 0 {
		ordering = []core.Ordering{DefaultOrdering}
	}
	drafts, err := svc.repo.ListDrafts(ctx, owner, ordering...)
	if err != nil {
		return nil, errors.Wrap(err, "listing drafts")
	}
	states := make([]State, 0, len(drafts))
	for _, d := range drafts {
		tr, err := svc.tracker(d)
		if err != nil {
			return nil, err
		}
		states = append(states, stateOf(d, tr))
	}
	return states, nil
}

// Update sets the current value of the draft.
func (svc *Service) Update(ctx context.Context, owner, key string, value json.RawMessage) (State, error) {
	if len(value) == 0 {
		return State{}, errEmptyDraft
	}
	val, err := decode(value)
	if err != nil {
		return State{}, errInvalidJSON
	}
	return svc.apply(ctx, owner, key, func(tr *formstate.Tracker[interface{}], _ *Draft) { tr.SetValue(val) })
}

// Reset throws the edits away.
func (svc *Service) Reset(ctx context.Context, owner, key string) (State, error) {
	return svc.apply(ctx, owner, key, func(tr *formstate.Tracker[interface{}], _ *Draft) { tr.Reset() })
}

// MarkSaved records that the current value was saved by the backend.
func (svc *Service) MarkSaved(ctx context.Context, owner, key string) (State, error) {
	return svc.apply(ctx, owner, key, func(tr *formstate.Tracker[interface{}], d *Draft) {
		tr.MarkAsSaved()
		now := nowFunc().UTC()
		d.SavedAt = &now
	})
}

func (svc *Service) apply(ctx context.Context, owner, key string, fn func(*formstate.Tracker[interface{}], *Draft)) (State, error) {
	d, err := svc.repo.GetDraft(ctx, owner, key)
	if err != nil {
		return State{}, err
	}
	tr, err := svc.tracker(d)
	if err != nil {
		return State{}, err
	}
	fn(tr, &d)
	return svc.persist(ctx, d, tr)
}

// Discard deletes the draft.
func (svc *Service) Discard(ctx context.Context, owner, key string) error {
	if err := svc.repo.DeleteDraft(ctx, owner, key); err != nil {
		return err
	}
	svc.unsaved.Remove(registryKey(owner, key))
	return nil
}

// Forget drops the unsaved-changes warnings of owner, e.g. on logout, and returns how many were dropped.
func (svc *Service) Forget(owner string) int {
	return svc.unsaved.ClearPrefix(registryPrefix(owner))
}

// Unsaved returns the "owner/key" of every draft with unsaved changes, the owner being path escaped.
func (svc *Service) Unsaved() []string {
	return svc.unsaved.Keys()
}

func stateOf(d Draft, tr *formstate.Tracker[interface{}]) State {
	return State{
		Key:       d.Key,
		Value:     tr.Value(),
		Original:  tr.Original(),
		IsDirty:   tr.IsDirty(),
		UpdatedAt: d.UpdatedAt,
		SavedAt:   d.SavedAt,
	}
}

func decode(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
