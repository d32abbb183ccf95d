package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/routes"
)

type routesApi struct {
	classifier *routes.Classifier
}

func registerRoutesAPI(g *echo.Group, opts *Options) {
	api := routesApi{classifier: opts.Routes}

	g.GET("/routes/policy", api.policy)
}

func (api *routesApi) policy(ctx echo.Context) error {
	path := ctx.QueryParam("path")
	if !strings.HasPrefix(path, "/") {
		return core.NewValidationError(nil, core.FieldError{Field: "path", Error: "path must start with /"})
	}
	return ctx.JSON(http.StatusOK, api.classifier.Policy(path))
}
