package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/checkout"
)

type checkoutApi struct {
	conf     *core.Config
	svc      *checkout.Service
	validate *validator.Validate
}

func registerCheckoutAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := checkoutApi{conf: opts.Conf, svc: opts.Checkout, validate: opts.Validate}

	g.POST("/checkout/verify-and-unlock", api.verifyAndUnlock, jwt)
}

func (api *checkoutApi) verifyAndUnlock(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data checkout.VerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	res, err := api.svc.VerifyAndUnlock(ctx.Request().Context(), claims.Person(), data, useCaseMeta(ctx, api.conf))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
