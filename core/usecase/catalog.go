package usecase

import (
	"sort"

	"github.com/pkg/errors"
)

var ErrUnknownUseCase = errors.New("unknown use case")

type (
	App    string
	Kind   string
	Access string
)

const (
	AppCMS      App = "cms"
	AppPlatform App = "platform"

	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"

	// AccessPublic use cases never need a session.
	AccessPublic Access = "public"
	// AccessMixed use cases work anonymously but are personalized when a session exists.
	AccessMixed Access = "mixed"
	// AccessProtected use cases need a session.
	AccessProtected Access = "protected"
	// AccessAdmin use cases need a session with the admin role.
	AccessAdmin Access = "admin"
	// AccessInternal use cases are only run by the server itself, never on behalf of a client request.
	AccessInternal Access = "internal"

	RoleAdmin   = "admin"
	RoleCoach   = "coach"
	RoleStudent = "student"
)

// UseCase describes a backend use case.
type UseCase struct {
	Name   string   `json:"name"`
	App    App      `json:"app"`
	Kind   Kind     `json:"kind"`
	Access Access   `json:"access"`
	Roles  []string `json:"roles,omitempty"` // any of; empty means any authenticated user
}

func (uc UseCase) AllowsAnonymous() bool {
	return uc.Access == AccessPublic || uc.Access == AccessMixed
}

func (uc UseCase) RequiresAdmin() bool {
	return uc.Access == AccessAdmin
}

func (uc UseCase) IsInternal() bool {
	return uc.Access == AccessInternal
}

// GetExposed is Get for client requests: internal use cases are unknown to clients.
func (c *Catalog) GetExposed(app App, name string) (UseCase, error) {
	uc, err := c.Get(app, name)
	if err == nil && uc.IsInternal() {
		return UseCase{}, errors.Wrapf(ErrUnknownUseCase, "%s/%s", app, name)
	}
	return uc, err
}

// Catalog indexes use cases by app and name.
type Catalog struct {
	byApp map[App]map[string]UseCase
}

func NewCatalog(useCases ...UseCase) *Catalog {
	c := &Catalog{byApp: make(map[App]map[string]UseCase)}
	for _, uc := range useCases {
		c.Add(uc)
	}
	return c
}

func (c *Catalog) Add(uc UseCase) {
	m, ok := c.byApp[uc.App]
	if !ok {
		m = make(map[string]UseCase)
		c.byApp[uc.App] = m
	}
	m[uc.Name] = uc
}

func (c *Catalog) Get(app App, name string) (UseCase, error) {
	if uc, ok := c.byApp[app][name]; ok {
		return uc, nil
	}
	return UseCase{}, errors.Wrapf(ErrUnknownUseCase, "%s/%s", app, name)
}

// ForApp returns the use cases of app sorted by name.
func (c *Catalog) ForApp(app App) []UseCase {
	out := make([]UseCase, 0, len(c.byApp[app]))
	for _, uc := range c.byApp[app] {
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func q(app App, name string, access Access, roles ...string) UseCase {
	return UseCase{Name: name, App: app, Kind: KindQuery, Access: access, Roles: roles}
}

func m(app App, name string, access Access, roles ...string) UseCase {
	return UseCase{Name: name, App: app, Kind: KindMutation, Access: access, Roles: roles}
}

// DefaultCatalog lists the use cases of the CMS and platform apps.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		// platform: public pages
		q(AppPlatform, "getHomePage", AccessPublic),
		q(AppPlatform, "getFooter", AccessPublic),
		q(AppPlatform, "getPlatformLanguage", AccessPublic),
		q(AppPlatform, "listTopics", AccessPublic),
		q(AppPlatform, "listOffersPageOutlines", AccessPublic),
		q(AppPlatform, "getOffersPageOutline", AccessPublic),

		// platform: personalized when signed in
		q(AppPlatform, "listCourses", AccessMixed),
		q(AppPlatform, "getCourseAccess", AccessMixed),
		q(AppPlatform, "getPublicCourseDetails", AccessMixed),
		q(AppPlatform, "getPackage", AccessMixed),
		q(AppPlatform, "listPackages", AccessMixed),
		q(AppPlatform, "getCoachProfile", AccessMixed),
		q(AppPlatform, "listCoaches", AccessMixed),
		q(AppPlatform, "listAvailableCoachings", AccessMixed),
		q(AppPlatform, "listCoachingOfferings", AccessMixed),

		// platform: workspace
		q(AppPlatform, "listUserCourses", AccessProtected),
		q(AppPlatform, "getEnrolledCourseDetails", AccessProtected, RoleStudent, RoleCoach, RoleAdmin),
		q(AppPlatform, "listStudentCoachingSessions", AccessProtected, RoleStudent),
		q(AppPlatform, "listCoachCoachingSessions", AccessProtected, RoleCoach),
		q(AppPlatform, "listUpcomingStudentCoachingSessions", AccessProtected, RoleStudent),
		q(AppPlatform, "getCoachAvailability", AccessProtected),
		q(AppPlatform, "listNotifications", AccessProtected),
		q(AppPlatform, "listUserTransactions", AccessProtected),
		q(AppPlatform, "listCourseStudents", AccessProtected, RoleCoach, RoleAdmin),
		q(AppPlatform, "listReviews", AccessProtected),
		m(AppPlatform, "scheduleCoachingSession", AccessProtected, RoleStudent),
		m(AppPlatform, "unscheduleCoachingSession", AccessProtected),
		m(AppPlatform, "createCoachingSessionReview", AccessProtected, RoleStudent),
		m(AppPlatform, "markNotificationsAsRead", AccessProtected),
		m(AppPlatform, "saveCoachAvailability", AccessProtected, RoleCoach),
		m(AppPlatform, "updateProfile", AccessProtected),
		m(AppPlatform, "prepareCheckout", AccessMixed),
		m(AppPlatform, "processPurchase", AccessInternal),
		m(AppPlatform, "createCourse", AccessProtected, RoleCoach, RoleAdmin),
		m(AppPlatform, "saveCourseStructure", AccessProtected, RoleCoach, RoleAdmin),
		m(AppPlatform, "addCourseCoach", AccessProtected, RoleCoach, RoleAdmin),
		m(AppPlatform, "removeCourseCoach", AccessProtected, RoleCoach, RoleAdmin),

		// cms
		q(AppCMS, "listCourses", AccessAdmin),
		q(AppCMS, "listPackages", AccessAdmin),
		q(AppCMS, "listCoupons", AccessAdmin),
		q(AppCMS, "listCoaches", AccessAdmin),
		q(AppCMS, "listTopics", AccessAdmin),
		q(AppCMS, "listUsers", AccessAdmin),
		q(AppCMS, "listTransactions", AccessAdmin),
		q(AppCMS, "getPlatform", AccessAdmin),
		q(AppCMS, "getHomePage", AccessAdmin),
		q(AppCMS, "getFooter", AccessAdmin),
		q(AppCMS, "listPlatformCoachingSessions", AccessAdmin),
		m(AppCMS, "createCoupon", AccessAdmin),
		m(AppCMS, "updateCoupon", AccessAdmin),
		m(AppCMS, "createPackage", AccessAdmin),
		m(AppCMS, "updatePackage", AccessAdmin),
		m(AppCMS, "deletePackage", AccessAdmin),
		m(AppCMS, "saveHomePage", AccessAdmin),
		m(AppCMS, "saveFooter", AccessAdmin),
		m(AppCMS, "createTopic", AccessAdmin),
		m(AppCMS, "updatePlatform", AccessAdmin),
		m(AppCMS, "addCoachToPlatform", AccessAdmin),
		m(AppCMS, "removeCoachFromPlatform", AccessAdmin),
	)
}
