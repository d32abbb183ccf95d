package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/draft"
)

var draftOrderings = map[string]bool{"key": true, "created_at": true, "updated_at": true, "saved_at": true}

type draftRow struct {
	Owner     string    `db:"owner"`
	Key       string    `db:"key"`
	Original  []byte    `db:"original"`
	Current   []byte    `db:"current"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	SavedAt   null.Time `db:"saved_at"`
}

func (r draftRow) draft() draft.Draft {
	d := draft.Draft{
		Owner:     r.Owner,
		Key:       r.Key,
		Original:  json.RawMessage(r.Original),
		Current:   json.RawMessage(r.Current),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.SavedAt.Valid {
		t := r.SavedAt.Time.UTC()
		d.SavedAt = &t
	}
	return d
}

type draftRepository struct {
	db *sqlx.DB
}

var _ draft.Repository = (*draftRepository)(nil)

func NewDraftRepository(db *sqlx.DB) draft.Repository {
	return &draftRepository{db: db}
}

const draftColumns = "owner, key, original, current, created_at, updated_at, saved_at"

func (repo *draftRepository) GetDraft(ctx context.Context, owner, key string) (draft.Draft, error) {
	var row draftRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+draftColumns+` FROM form_drafts WHERE owner = $1 AND key = $2`, owner, key)
	if err == sql.ErrNoRows {
		return draft.Draft{}, draft.ErrNotFound
	}
	if err != nil {
		return draft.Draft{}, errors.Wrap(err, "selecting draft")
	}
	return row.draft(), nil
}

func (repo *draftRepository) SaveDraft(ctx context.Context, d draft.Draft) (draft.Draft, error) {
	var row draftRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO form_drafts (`+draftColumns+`)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7)
		ON CONFLICT (owner, key) DO UPDATE SET
			original = EXCLUDED.original,
			current = EXCLUDED.current,
			updated_at = EXCLUDED.updated_at,
			saved_at = COALESCE(EXCLUDED.saved_at, form_drafts.saved_at)
		RETURNING `+draftColumns,
		d.Owner, d.Key, string(d.Original), string(d.Current), d.CreatedAt, d.UpdatedAt, null.TimeFromPtr(d.SavedAt),
	)
	if err != nil {
		return draft.Draft{}, errors.Wrap(err, "upserting draft")
	}
	return row.draft(), nil
}

func (repo *draftRepository) DeleteDraft(ctx context.Context, owner, key string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM form_drafts WHERE owner = $1 AND key = $2`, owner, key)
	if err != nil {
		return errors.Wrap(err, "deleting draft")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return draft.ErrNotFound
	}
	return nil
}

func (repo *draftRepository) ListDrafts(ctx context.Context, owner string, ordering ...core.Ordering) ([]draft.Draft, error) {
	q := `SELECT ` + draftColumns + ` FROM form_drafts WHERE owner = $1` + orderBy(draftOrderings, ordering)
	var rows []draftRow
	if err := repo.db.SelectContext(ctx, &rows, q, owner); err != nil {
		return nil, errors.Wrap(err, "selecting drafts")
	}
	drafts := make([]draft.Draft, 0, len(rows))
	for _, r := range rows {
		drafts = append(drafts, r.draft())
	}
	return drafts, nil
}

// orderBy builds an ORDER BY clause from the allowed fields of ordering.
func orderBy(allowed map[string]bool, ordering []core.Ordering) string {
	clauses := make([]string, 0, len(ordering))
	for _, o := range ordering {
		if allowed[o.Field] {
			clauses = append(clauses, o.String())
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
