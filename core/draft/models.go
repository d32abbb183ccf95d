package draft

import (
	"encoding/json"
	"time"
)

// Draft is a form the user is editing, stored server side so it survives reloads.
type Draft struct {
	Owner     string          `db:"owner"`
	Key       string          `db:"key"`
	Original  json.RawMessage `db:"original"`
	Current   json.RawMessage `db:"current"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
	SavedAt   *time.Time      `db:"-"`
}

// State is what clients see of a draft.
type State struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	Original  interface{} `json:"original"`
	IsDirty   bool        `json:"isDirty"`
	UpdatedAt time.Time   `json:"updatedAt"`
	SavedAt   *time.Time  `json:"savedAt,omitempty"`
}

// OpenDraft is the body of a request that opens (or updates) a draft.
type OpenDraft struct {
	Initial json.RawMessage `json:"initial"`
	Value   json.RawMessage `json:"value"`
}

func (od OpenDraft) Validate() error {
	if len(od.Initial) == 0 && len(od.Value) == 0 {
		return errEmptyDraft
	}
	return nil
}
