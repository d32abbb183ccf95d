// Package viewmodel holds the tagged {mode, data} values the apps render.
package viewmodel

type Mode string

const (
	ModeDefault         Mode = "default"
	ModeSuccess         Mode = "success"
	ModeNotFound        Mode = "not-found"
	ModeInvalid         Mode = "invalid"
	ModeConflict        Mode = "conflict"
	ModeUnauthenticated Mode = "unauthenticated"
	ModeKaboom          Mode = "kaboom"
	ModeError           Mode = "error"
	ModeProgress        Mode = "progress"
	ModePartial         Mode = "partial"
)

// ViewModel is what a presenter hands to the UI.
type ViewModel struct {
	Mode Mode        `json:"mode"`
	Data interface{} `json:"data"`
}

// ErrorData is the payload of every error mode.
type ErrorData struct {
	Message   string                 `json:"message"`
	Operation string                 `json:"operation"`
	Context   map[string]interface{} `json:"context"`
}

// IsError reports whether mode carries an ErrorData.
func IsError(mode Mode) bool {
	switch mode {
	case ModeNotFound, ModeInvalid, ModeConflict, ModeUnauthenticated, ModeKaboom, ModeError:
		return true
	}
	return false
}
