package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/maany-shr/eclass/apps/api/echo"
	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/checkout"
	"github.com/maany-shr/eclass/core/draft"
	"github.com/maany-shr/eclass/core/formstate"
	"github.com/maany-shr/eclass/core/presenter"
	"github.com/maany-shr/eclass/core/routes"
	"github.com/maany-shr/eclass/core/session"
	"github.com/maany-shr/eclass/core/upload"
	"github.com/maany-shr/eclass/core/usecase"
	"github.com/maany-shr/eclass/services/cmsrest"
	emailsvc "github.com/maany-shr/eclass/services/email"
	logsvc "github.com/maany-shr/eclass/services/logger"
	"github.com/maany-shr/eclass/services/objectstore"
	"github.com/maany-shr/eclass/storage/database"
	inmemdb "github.com/maany-shr/eclass/storage/database/inmem"
	sqlxrepos "github.com/maany-shr/eclass/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type ServerParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Catalog    *usecase.Catalog
	Executor   usecase.Executor
	Presenters *presenter.Registry
	Monitor    *session.Monitor
	Routes     *routes.Classifier
	Drafts     *draft.Service
	Uploads    *upload.Service
	Checkout   *checkout.Service
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.New("API"), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.New("DB"), conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newDB sets up the postgres database. It returns a nil DB when the app runs on the in-memory store.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.InMemory {
		loggerParam.Logger.Warn("running on the in-memory store: drafts and purchases are lost on restart")
		return nil
	}

	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newDraftRepository(db *sqlx.DB, mem *inmemdb.DB) draft.Repository {
	if db == nil {
		return inmemdb.NewDraftRepository(mem)
	}
	return sqlxrepos.NewDraftRepository(db)
}

func newPurchaseRepository(db *sqlx.DB, mem *inmemdb.DB) checkout.Repository {
	if db == nil {
		return inmemdb.NewPurchaseRepository(mem)
	}
	return sqlxrepos.NewPurchaseRepository(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newExecutor(conf *core.Config, logger core.Logger) usecase.Executor {
	return cmsrest.NewClient(conf.Backend, logger)
}

func newUploadService(conf *core.Config, logger core.Logger) (*upload.Service, error) {
	store, err := objectstore.NewS3Store(context.Background(), conf.ObjectStore, logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating object store client")
	}
	return upload.NewService(store, conf.ObjectStore, logger), nil
}

func newClassifier(conf *core.Config) *routes.Classifier {
	return routes.NewClassifier(conf.Locales...)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:    p.Conf.Server.Host,
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Catalog:    p.Catalog,
		Executor:   p.Executor,
		Presenters: p.Presenters,
		Monitor:    p.Monitor,
		Routes:     p.Routes,
		Drafts:     p.Drafts,
		Uploads:    p.Uploads,
		Checkout:   p.Checkout,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(inmemdb.Open))
	must(c.Provide(newDraftRepository))
	must(c.Provide(newPurchaseRepository))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(usecase.DefaultCatalog))
	must(c.Provide(newExecutor))
	must(c.Provide(presenter.NewRegistry))
	must(c.Provide(session.NewMonitor))
	must(c.Provide(newClassifier))
	must(c.Provide(formstate.NewUnsavedChanges))
	must(c.Provide(draft.NewService))
	must(c.Provide(newUploadService))
	must(c.Provide(checkout.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
