package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/text/language"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/auth"
	"github.com/maany-shr/eclass/core/draft"
	"github.com/maany-shr/eclass/core/usecase"
)

const (
	contextTokenKey = "userToken"

	headerAcceptLanguage = "Accept-Language"
)

// newJWTConfig returns the JWT auth middleware config of the id tokens.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: auth.SigningMethod,
		ContextKey:    contextTokenKey,
		Claims:        new(auth.Claims),
	}
}

// optional lets requests without an Authorization header through anonymously.
// A token that is sent must still be valid.
func optional(conf middleware.JWTConfig) middleware.JWTConfig {
	conf.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return conf
}

func getContextToken(ctx echo.Context) (*jwt.Token, bool) {
	token, ok := ctx.Get(contextTokenKey).(*jwt.Token)
	return token, ok
}

func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if token, ok := getContextToken(ctx); ok {
		if claims, ok := token.Claims.(*auth.Claims); ok {
			return *claims, nil
		}
	}
	return auth.Claims{}, errUnauthorized
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	return claims.HasAnyRole(roles...)
}

// useCaseMeta collects what the backend needs to know about the caller.
func useCaseMeta(ctx echo.Context, conf *core.Config) usecase.Meta {
	meta := usecase.Meta{SessionID: auth.PublicSessionID, Runtime: conf.Backend.Runtime}
	var preferred string
	if token, ok := getContextToken(ctx); ok {
		meta.IDToken = token.Raw
		if claims, ok := token.Claims.(*auth.Claims); ok {
			meta.SessionID = claims.SessionOrPublic()
			preferred = claims.Locale
		}
	}
	meta.Locale = negotiateLocale(conf, ctx.Request().Header.Get(headerAcceptLanguage), preferred)
	return meta
}

// negotiateLocale picks the supported locale closest to the accepted ones, the default locale when nothing matches.
func negotiateLocale(conf *core.Config, accepted ...string) string {
	if len(conf.Locales) == 0 {
		return conf.DefaultLocale
	}
	tags := make([]language.Tag, 0, len(conf.Locales))
	for _, l := range conf.Locales {
		tags = append(tags, language.Make(l))
	}
	_, idx := language.MatchStrings(language.NewMatcher(tags), accepted...)
	return conf.Locales[idx]
}

type authApi struct {
	conf   *core.Config
	drafts *draft.Service
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := authApi{conf: opts.Conf, drafts: opts.Drafts}

	ag := g.Group("/auth", jwt)
	ag.GET("/session", api.session)
	ag.POST("/logout", api.logout)
}

// SessionInfo tells the session monitor when to warn the user about the expiry of their session.
type SessionInfo struct {
	Subject   string    `json:"subject"`
	SessionID string    `json:"sessionId"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expiresAt"`
	ExpiresIn int64     `json:"expiresIn"` // seconds
	WarnAt    time.Time `json:"warnAt"`
	Expiring  bool      `json:"expiring"`
}

func (api *authApi) session(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	left := claims.ExpiresIn()
	expiresAt := time.Unix(claims.ExpiresAt, 0).UTC()
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return ctx.JSON(http.StatusOK, SessionInfo{
		Subject:   claims.Subject,
		SessionID: claims.SessionOrPublic(),
		Roles:     roles,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(left / time.Second),
		WarnAt:    expiresAt.Add(-api.conf.Server.SessionWarningDelta),
		Expiring:  left <= api.conf.Server.SessionWarningDelta,
	})
}

// LogoutResponse reports how many unsaved-changes warnings were dropped.
type LogoutResponse struct {
	Cleared int `json:"cleared"`
}

func (api *authApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LogoutResponse{Cleared: api.drafts.Forget(claims.Subject)})
}
