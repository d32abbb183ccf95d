package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core/draft"
)

type draftApi struct {
	svc *draft.Service
}

func registerDraftAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := draftApi{svc: opts.Drafts}

	dg := g.Group("/drafts", jwt)
	dg.GET("", api.query)
	dg.PUT("/:key", api.open)
	dg.GET("/:key", api.retrieve)
	dg.POST("/:key/reset", api.reset)
	dg.POST("/:key/saved", api.markSaved)
	dg.DELETE("/:key", api.destroy)
}

func (api *draftApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	states, err := api.svc.List(ctx.Request().Context(), claims.Subject, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "listing drafts")
	}
	return ctx.JSON(http.StatusOK, states)
}

func (api *draftApi) open(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data draft.OpenDraft
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenDraft")
	}

	state, err := api.svc.Open(ctx.Request().Context(), claims.Subject, ctx.Param("key"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *draftApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	state, err := api.svc.Get(ctx.Request().Context(), claims.Subject, ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *draftApi) reset(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	state, err := api.svc.Reset(ctx.Request().Context(), claims.Subject, ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *draftApi) markSaved(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	state, err := api.svc.MarkSaved(ctx.Request().Context(), claims.Subject, ctx.Param("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *draftApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Discard(ctx.Request().Context(), claims.Subject, ctx.Param("key")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
