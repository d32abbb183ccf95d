package echoapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/presenter"
	"github.com/maany-shr/eclass/core/usecase"
	"github.com/maany-shr/eclass/core/viewmodel"
)

const maxInputSize = 1 << 20

type useCaseApi struct {
	conf       *core.Config
	logger     core.Logger
	catalog    *usecase.Catalog
	exec       usecase.Executor
	presenters *presenter.Registry
}

func registerUseCaseAPI(g *echo.Group, optionalJWT echo.MiddlewareFunc, opts *Options) {
	api := useCaseApi{
		conf:       opts.Conf,
		logger:     opts.Logger,
		catalog:    opts.Catalog,
		exec:       opts.Executor,
		presenters: opts.Presenters,
	}

	g.POST("/:app/usecases/:name", api.execute, optionalJWT)
}

// execute runs a use case on behalf of the caller and answers with its view-model.
// Failed use cases are view-models too: they are sent with a 200 so the apps render them.
func (api *useCaseApi) execute(ctx echo.Context) error {
	uc, err := api.catalog.GetExposed(usecase.App(ctx.Param("app")), ctx.Param("name"))
	if err != nil {
		return err
	}
	p := api.presenters.For(uc)

	claims, cErr := getContextClaims(ctx)
	authenticated := cErr == nil
	if !authenticated && !uc.AllowsAnonymous() {
		resp := usecase.Failure(usecase.ErrorTypeAuthentication, uc.Name, "You need to sign in to "+core.WordsOf(uc.Name))
		return ctx.JSON(http.StatusOK, p.Present(resp))
	}
	if authenticated && uc.RequiresAdmin() && !claims.HasAnyRole(usecase.RoleAdmin) {
		return errHttpForbidden
	}
	if authenticated && !uc.AllowsAnonymous() && !claims.HasAnyRole(uc.Roles...) {
		return errHttpForbidden
	}

	input, err := readInput(ctx)
	if err != nil {
		return err
	}

	resp, err := api.exec.Execute(ctx.Request().Context(), uc, input, useCaseMeta(ctx, api.conf))
	var vm viewmodel.ViewModel
	if err != nil {
		vm = p.PresentFailure(err)
		api.logger.Error(
			fmt.Sprintf("%s/%s failed (digest %s): %v", uc.App, uc.Name, presenter.Digest(vm), err),
			errors.Wrap(err, "executing use case"), claims.Person(),
		)
	} else {
		vm = p.Present(resp)
		if vm.Mode == viewmodel.ModeKaboom {
			api.logger.Warn(fmt.Sprintf("%s/%s answered with a kaboom", uc.App, uc.Name), claims.Person())
		}
	}
	return ctx.JSON(http.StatusOK, vm)
}

func readInput(ctx echo.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxInputSize))
	if err != nil {
		return nil, errors.Wrap(err, "reading use case input")
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errInvalidJSON
	}
	return body, nil
}
