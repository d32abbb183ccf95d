package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maany-shr/eclass/core/draft"
	"github.com/maany-shr/eclass/core/usecase"
)

type adminApi struct {
	catalog *usecase.Catalog
	drafts  *draft.Service
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := adminApi{catalog: opts.Catalog, drafts: opts.Drafts}

	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.GET("/usecases/:app", api.queryUseCases)
	ag.GET("/drafts/unsaved", api.queryUnsaved)
}

func (api *adminApi) queryUseCases(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.catalog.ForApp(usecase.App(ctx.Param("app"))))
}

// queryUnsaved lists the "owner/key" of the drafts that would be lost by a restart.
func (api *adminApi) queryUnsaved(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.drafts.Unsaved())
}
