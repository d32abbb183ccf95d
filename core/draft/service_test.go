package draft

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/formstate"
)

type repoMock struct {
	drafts map[string]Draft
	err    error
}

func newRepoMock() *repoMock { return &repoMock{drafts: make(map[string]Draft)} }

func (r *repoMock) GetDraft(_ context.Context, owner, key string) (Draft, error) {
	if r.err != nil {
		return Draft{}, r.err
	}
	d, ok := r.drafts[owner+"/"+key]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d, nil
}

func (r *repoMock) SaveDraft(_ context.Context, d Draft) (Draft, error) {
	r.drafts[d.Owner+"/"+d.Key] = d
	return d, nil
}

func (r *repoMock) DeleteDraft(_ context.Context, owner, key string) error {
	if _, ok := r.drafts[owner+"/"+key]; !ok {
		return ErrNotFound
	}
	delete(r.drafts, owner+"/"+key)
	return nil
}

func (r *repoMock) ListDrafts(_ context.Context, owner string, _ ...core.Ordering) ([]Draft, error) {
	var out []Draft
	for _, d := range r.drafts {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func setup(t *testing.T) (*Service, *repoMock, *formstate.UnsavedChanges) {
	t.Helper()
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })

	repo := newRepoMock()
	unsaved := formstate.NewUnsavedChanges()
	return NewService(repo, unsaved), repo, unsaved
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestService_Open(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		key       string
		od        OpenDraft
		wantErr   error
		wantDirty bool
		wantValue interface{}
	}{
		{name: "invalid key", key: "a/b", od: OpenDraft{Initial: raw(`{}`)}, wantErr: errInvalidKey},
		{name: "empty", key: "footer", wantErr: errEmptyDraft},
		{name: "invalid json", key: "footer", od: OpenDraft{Initial: raw(`{`)}, wantErr: errInvalidJSON},
		{
			name:      "initial only",
			key:       "footer",
			od:        OpenDraft{Initial: raw(`{"title": "eClass"}`)},
			wantValue: map[string]interface{}{"title": "eClass"},
		},
		{
			name:      "initial and value",
			key:       "course:12",
			od:        OpenDraft{Initial: raw(`{"title": "Go"}`), Value: raw(`{"title": "Go 101"}`)},
			wantDirty: true,
			wantValue: map[string]interface{}{"title": "Go 101"},
		},
		{
			name:      "value only",
			key:       "profile",
			od:        OpenDraft{Value: raw(`{"bio": "hi"}`)},
			wantValue: map[string]interface{}{"bio": "hi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, unsaved := setup(t)
			st, err := svc.Open(ctx, "u1", tt.key, tt.od)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.key, st.Key)
			assert.Equal(t, tt.wantDirty, st.IsDirty)
			assert.Equal(t, tt.wantValue, st.Value)
			assert.Equal(t, tt.wantDirty, unsaved.HasUnsaved())
		})
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, repo, unsaved := setup(t)

	_, err := svc.Open(ctx, "u1", "footer", OpenDraft{Initial: raw(`{"title": "eClass", "links": ["/about"]}`)})
	assert.NoError(t, err)

	// reopening returns the stored draft untouched
	st, err := svc.Open(ctx, "u1", "footer", OpenDraft{Initial: raw(`{"title": "ignored"}`)})
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "eClass", "links": []interface{}{"/about"}}, st.Value)
	assert.False(t, st.IsDirty)

	st, err = svc.Update(ctx, "u1", "footer", raw(`{"title": "eClass Academy", "links": ["/about"]}`))
	assert.NoError(t, err)
	assert.True(t, st.IsDirty)
	assert.Equal(t, []string{"u1/footer"}, svc.Unsaved())

	// key order and whitespace do not make a draft dirty
	st, err = svc.Update(ctx, "u1", "footer", raw(`{ "links": ["/about"], "title": "eClass" }`))
	assert.NoError(t, err)
	assert.False(t, st.IsDirty)
	assert.False(t, unsaved.HasUnsaved())

	_, err = svc.Update(ctx, "u1", "footer", raw(`{"title": "v2"}`))
	assert.NoError(t, err)
	st, err = svc.Reset(ctx, "u1", "footer")
	assert.NoError(t, err)
	assert.False(t, st.IsDirty)
	assert.Equal(t, st.Original, st.Value)
	assert.JSONEq(t, `{"title": "eClass", "links": ["/about"]}`, string(repo.drafts["u1/footer"].Current))

	_, err = svc.Update(ctx, "u1", "footer", raw(`{"title": "v3"}`))
	assert.NoError(t, err)
	st, err = svc.MarkSaved(ctx, "u1", "footer")
	assert.NoError(t, err)
	assert.False(t, st.IsDirty)
	assert.Equal(t, map[string]interface{}{"title": "v3"}, st.Original)
	if assert.NotNil(t, st.SavedAt) {
		assert.Equal(t, time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC), *st.SavedAt)
	}
	assert.Empty(t, svc.Unsaved())

	st, err = svc.Get(ctx, "u1", "footer")
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "v3"}, st.Value)

	_, err = svc.Get(ctx, "u2", "footer")
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	_, err = svc.Update(ctx, "u1", "footer", nil)
	assert.Equal(t, errEmptyDraft, err)
	_, err = svc.Update(ctx, "u1", "footer", raw(`nope`))
	assert.Equal(t, errInvalidJSON, err)
	_, err = svc.Reset(ctx, "u1", "missing")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestService_ListDiscardForget(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	_, _ = svc.Open(ctx, "u1", "a", OpenDraft{Initial: raw(`1`), Value: raw(`2`)})
	_, _ = svc.Open(ctx, "u1", "b", OpenDraft{Initial: raw(`"x"`)})
	_, _ = svc.Open(ctx, "u2", "a", OpenDraft{Initial: raw(`true`), Value: raw(`false`)})

	states, err := svc.List(ctx, "u1")
	assert.NoError(t, err)
	if assert.Len(t, states, 2) {
		assert.Equal(t, "a", states[0].Key)
		assert.True(t, states[0].IsDirty)
		assert.False(t, states[1].IsDirty)
	}
	assert.Equal(t, []string{"u1/a", "u2/a"}, svc.Unsaved())

	assert.NoError(t, svc.Discard(ctx, "u1", "a"))
	assert.Equal(t, []string{"u2/a"}, svc.Unsaved())
	assert.Equal(t, ErrNotFound, errors.Cause(svc.Discard(ctx, "u1", "a")))

	assert.Equal(t, 1, svc.Forget("u2"))
	assert.Empty(t, svc.Unsaved())
}

func TestService_ForgetOwnerWithSlash(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	_, _ = svc.Open(ctx, "a", "x", OpenDraft{Initial: raw(`1`), Value: raw(`2`)})
	_, _ = svc.Open(ctx, "a/b", "x", OpenDraft{Initial: raw(`1`), Value: raw(`2`)})
	assert.Equal(t, []string{"a%2Fb/x", "a/x"}, svc.Unsaved())

	assert.Equal(t, 1, svc.Forget("a"))
	assert.Equal(t, []string{"a%2Fb/x"}, svc.Unsaved())
	assert.Equal(t, 1, svc.Forget("a/b"))
	assert.Empty(t, svc.Unsaved())
}

func TestService_RepoFailure(t *testing.T) {
	svc, repo, _ := setup(t)
	repo.err = errors.New("db down")

	_, err := svc.Open(context.Background(), "u1", "footer", OpenDraft{Initial: raw(`{}`)})
	assert.EqualError(t, err, "getting draft: db down")
}
