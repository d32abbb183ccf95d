package inmemdb

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/draft"
)

type draftRepository struct {
	db *draftTable
}

var _ draft.Repository = (*draftRepository)(nil)

func NewDraftRepository(db *DB) draft.Repository {
	return &draftRepository{db: db.draft}
}

func copyDraft(d draft.Draft) draft.Draft {
	d.Original = append(json.RawMessage(nil), d.Original...)
	d.Current = append(json.RawMessage(nil), d.Current...)
	if d.SavedAt != nil {
		t := *d.SavedAt
		d.SavedAt = &t
	}
	return d
}

func (repo *draftRepository) GetDraft(_ context.Context, owner, key string) (draft.Draft, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	d, ok := repo.db.table[draftPK{owner, key}]
	if !ok {
		return draft.Draft{}, draft.ErrNotFound
	}
	return copyDraft(*d), nil
}

func (repo *draftRepository) SaveDraft(_ context.Context, d draft.Draft) (draft.Draft, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	pk := draftPK{d.Owner, d.Key}
	if old, ok := repo.db.table[pk]; ok {
		d.CreatedAt = old.CreatedAt
		if d.SavedAt == nil {
			d.SavedAt = old.SavedAt
		}
	}
	d = copyDraft(d)
	repo.db.table[pk] = &d
	return copyDraft(d), nil
}

func (repo *draftRepository) DeleteDraft(_ context.Context, owner, key string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	pk := draftPK{owner, key}
	if _, ok := repo.db.table[pk]; !ok {
		return draft.ErrNotFound
	}
	delete(repo.db.table, pk)
	return nil
}

func (repo *draftRepository) ListDrafts(_ context.Context, owner string, ordering ...core.Ordering) ([]draft.Draft, error) {
	repo.db.RLock()
	drafts := make([]draft.Draft, 0)
	for pk, d := range repo.db.table {
		if pk.owner == owner {
			drafts = append(drafts, copyDraft(*d))
		}
	}
	repo.db.RUnlock()

	sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].Key < drafts[j].Key })
	for k := len(ordering) - 1; k >= 0; k-- {
		ord := ordering[k]
		sort.SliceStable(drafts, func(i, j int) bool {
			less, greater := compareDrafts(drafts[i], drafts[j], ord.Field)
			if ord.Ascending {
				return less
			}
			return greater
		})
	}
	return drafts, nil
}

func compareDrafts(a, b draft.Draft, field string) (less, greater bool) {
	switch field {
	case "key":
		return a.Key < b.Key, a.Key > b.Key
	case "created_at":
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.After(b.UpdatedAt)
	case "saved_at":
		switch {
		case a.SavedAt == nil || b.SavedAt == nil:
			return a.SavedAt == nil && b.SavedAt != nil, a.SavedAt != nil && b.SavedAt == nil
		default:
			return a.SavedAt.Before(*b.SavedAt), a.SavedAt.After(*b.SavedAt)
		}
	}
	return false, false
}
