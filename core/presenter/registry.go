package presenter

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/maany-shr/eclass/core/session"
	"github.com/maany-shr/eclass/core/usecase"
)

var nowFunc = time.Now // mockable

// Registry holds the presenter options of the use cases that need more than the default mapping.
type Registry struct {
	mu      sync.RWMutex
	options map[usecase.App]map[string][]Option
}

// NewRegistry returns a registry with the presenters of the apps registered.
func NewRegistry() *Registry {
	r := &Registry{options: make(map[usecase.App]map[string][]Option)}

	for _, name := range []string{
		"listStudentCoachingSessions",
		"listCoachCoachingSessions",
		"listUpcomingStudentCoachingSessions",
	} {
		r.Register(usecase.AppPlatform, name, WithSuccess(AnnotateSessions))
	}
	r.Register(usecase.AppCMS, "listPlatformCoachingSessions", WithSuccess(AnnotateSessions))

	// coach management surfaces business errors inline
	r.Register(usecase.AppPlatform, "addCourseCoach", BusinessErrors())
	r.Register(usecase.AppPlatform, "removeCourseCoach", BusinessErrors())
	r.Register(usecase.AppCMS, "addCoachToPlatform", BusinessErrors())
	r.Register(usecase.AppCMS, "removeCoachFromPlatform", BusinessErrors())

	return r
}

// Register adds options to the presenter of app/name.
func (r *Registry) Register(app usecase.App, name string, opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.options[app]
	if !ok {
		m = make(map[string][]Option)
		r.options[app] = m
	}
	m[name] = append(m[name], opts...)
}

// For builds the presenter of uc. Extra options are applied last.
func (r *Registry) For(uc usecase.UseCase, extra ...Option) *Presenter {
	r.mu.RLock()
	opts := append([]Option(nil), r.options[uc.App][uc.Name]...)
	r.mu.RUnlock()
	return New(uc, append(opts, extra...)...)
}

const (
	sessionsKey      = "sessions"
	startTimeKey     = "startTime"
	sessionStatusKey = "sessionStatus"
)

// AnnotateSessions adds the current session.Result under "sessionStatus" to every item of the "sessions" list
// that has an RFC 3339 "startTime". Payloads of any other shape are passed through untouched.
func AnnotateSessions(data json.RawMessage) (interface{}, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return data, nil
	}
	rawSessions, ok := payload[sessionsKey]
	if !ok {
		return data, nil
	}
	var sessions []map[string]interface{}
	if err := json.Unmarshal(rawSessions, &sessions); err != nil {
		return data, nil
	}

	for _, s := range sessions {
		startStr, ok := s[startTimeKey].(string)
		if !ok {
			continue
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			continue
		}
		s[sessionStatusKey] = session.Classify(nowFunc(), start)
	}

	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	out[sessionsKey] = sessions
	return out, nil
}
