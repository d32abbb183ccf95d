package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/maany-shr/eclass/apps/api/echo"
	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/auth"
	"github.com/maany-shr/eclass/core/checkout"
	"github.com/maany-shr/eclass/core/draft"
	"github.com/maany-shr/eclass/core/formstate"
	"github.com/maany-shr/eclass/core/presenter"
	"github.com/maany-shr/eclass/core/routes"
	"github.com/maany-shr/eclass/core/session"
	"github.com/maany-shr/eclass/core/upload"
	"github.com/maany-shr/eclass/core/usecase"
	emailsvc "github.com/maany-shr/eclass/services/email"
	inmemdb "github.com/maany-shr/eclass/storage/database/inmem"
	testutil "github.com/maany-shr/eclass/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type storeMock struct {
	mu      sync.Mutex
	objects map[upload.Object]bool
}

func (s *storeMock) PresignPut(_ context.Context, obj upload.Object, _ time.Duration) (string, error) {
	return "http://minio.test/" + obj.Bucket + "/" + obj.Name + "?X-Amz-Signature=put", nil
}

func (s *storeMock) PresignGet(_ context.Context, obj upload.Object, _ time.Duration) (string, error) {
	return "http://minio.test/" + obj.Bucket + "/" + obj.Name + "?X-Amz-Signature=get", nil
}

func (s *storeMock) Exists(_ context.Context, obj upload.Object) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[obj], nil
}

func (s *storeMock) EnsureBucket(context.Context, string) error { return nil }
func (s *storeMock) Ping(context.Context) error                 { return nil }

func (s *storeMock) put(obj upload.Object) {
	s.mu.Lock()
	s.objects[obj] = true
	s.mu.Unlock()
}

type fixture struct {
	app    *Server
	conf   *core.Config
	exec   *testutil.Executor
	store  *storeMock
	logger *testutil.Logger
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Locales = []string{"en", "de"}
	conf.DefaultLocale = "en"
	conf.ObjectStore.Bucket = "eclass"

	logger := new(testutil.Logger)
	core.ParseEmailTemplates(conf, logger)
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	db := inmemdb.Open()
	f := fixture{
		conf:   conf,
		exec:   testutil.NewExecutor(),
		store:  &storeMock{objects: make(map[upload.Object]bool)},
		logger: logger,
	}
	catalog := usecase.DefaultCatalog()

	emailsvc.ResetSentMessages()
	t.Cleanup(emailsvc.ResetSentMessages)

	f.app = NewServer(&Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Catalog:        catalog,
		Executor:       f.exec,
		Presenters:     presenter.NewRegistry(),
		Monitor:        session.NewMonitor(),
		Routes:         routes.NewClassifier(conf.Locales...),
		Drafts:         draft.NewService(inmemdb.NewDraftRepository(db), formstate.NewUnsavedChanges()),
		Uploads:        upload.NewService(f.store, conf.ObjectStore, logger),
		Checkout: checkout.NewService(
			f.exec, catalog, inmemdb.NewPurchaseRepository(db), emailsvc.NewConsoleServiceMock(conf, logger), logger,
		),
	})
	return f
}

type tokenOpt func(*auth.Claims)

func withRoles(roles ...string) tokenOpt {
	return func(c *auth.Claims) { c.Roles = roles }
}

func withTTL(ttl time.Duration) tokenOpt {
	return func(c *auth.Claims) { c.ExpiresAt = time.Now().Add(ttl).Unix() }
}

func getToken(t *testing.T, conf *core.Config, subject string, opts ...tokenOpt) string {
	claims := auth.NewClaims(conf.AppName, subject, time.Hour)
	claims.SessionID = "sess-" + subject
	claims.Username = subject
	claims.Email = subject + "@test.cd"
	for _, opt := range opts {
		opt(claims)
	}
	token, err := auth.GenerateToken(claims, []byte(conf.SecretKey))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
	return m
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func (f fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
