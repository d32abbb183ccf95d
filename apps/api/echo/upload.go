package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core/upload"
)

type uploadApi struct {
	svc      *upload.Service
	validate *validator.Validate
}

func registerUploadAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := uploadApi{svc: opts.Uploads, validate: opts.Validate}

	g.POST("/uploads", api.forUpload, jwt)
	g.POST("/downloads", api.forDownload, jwt)
}

func (api *uploadApi) bindFile(ctx echo.Context) (upload.File, error) {
	var f upload.File
	if err := ctx.Bind(&f); err != nil {
		return f, errors.Wrap(err, "binding to File")
	}
	if err := api.validate.Struct(f); err != nil {
		return f, err
	}
	return f, nil
}

func (api *uploadApi) forUpload(ctx echo.Context) error {
	f, err := api.bindFile(ctx)
	if err != nil {
		return err
	}
	creds, err := api.svc.ForUpload(ctx.Request().Context(), f)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, creds)
}

func (api *uploadApi) forDownload(ctx echo.Context) error {
	f, err := api.bindFile(ctx)
	if err != nil {
		return err
	}
	creds, err := api.svc.ForDownload(ctx.Request().Context(), f)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, creds)
}
