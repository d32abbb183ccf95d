// Package cmsrest runs use cases against the CMS REST backend over its tRPC HTTP surface.
package cmsrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/time/rate"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/auth"
	"github.com/maany-shr/eclass/core/usecase"
)

const (
	HeaderSessionID = "x-eclass-session-id"
	HeaderRuntime   = "x-eclass-runtime"
)

type Client struct {
	baseURL string
	runtime string
	http    *rest.Client
	limiter *rate.Limiter
	logger  core.Logger
}

var _ usecase.Executor = (*Client)(nil)

func NewClient(conf core.BackendConfig, logger core.Logger) *Client {
	limit := rate.Inf
	if conf.RequestsPerSec > 0 {
		limit = rate.Limit(conf.RequestsPerSec)
	}
	burst := conf.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: conf.BaseURL,
		runtime: conf.Runtime,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *trpcError `json:"error"`
}

type trpcError struct {
	Message string `json:"message"`
	Data    struct {
		Code       string `json:"code"`
		HTTPStatus int    `json:"httpStatus"`
	} `json:"data"`
}

var errorTypes = map[string]usecase.ErrorType{
	"UNAUTHORIZED": usecase.ErrorTypeAuthentication,
	"FORBIDDEN":    usecase.ErrorTypeAuthentication,
	"NOT_FOUND":    usecase.ErrorTypeNotFound,
	"BAD_REQUEST":  usecase.ErrorTypeValidation,
	"PARSE_ERROR":  usecase.ErrorTypeValidation,
	"CONFLICT":     usecase.ErrorTypeConflict,
}

func (c *Client) headers(meta usecase.Meta) map[string]string {
	h := map[string]string{
		"Accept":        "application/json",
		HeaderSessionID: meta.SessionID,
	}
	if meta.SessionID == "" {
		h[HeaderSessionID] = auth.PublicSessionID
	}
	if meta.IDToken != "" {
		h["Authorization"] = "Bearer " + meta.IDToken
	}
	if meta.Locale != "" {
		h["Accept-Language"] = meta.Locale
	}
	runtime := meta.Runtime
	if runtime == "" {
		runtime = c.runtime
	}
	if runtime != "" {
		h[HeaderRuntime] = runtime
	}
	return h
}

// Execute sends a query as GET with the input in the query string and a mutation as POST with the input as body.
func (c *Client) Execute(ctx context.Context, uc usecase.UseCase, input json.RawMessage, meta usecase.Meta) (usecase.Response, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	req := rest.Request{
		BaseURL: c.baseURL + "/trpc/" + uc.Name,
		Headers: c.headers(meta),
	}
	if uc.Kind == usecase.KindMutation {
		req.Method = rest.Post
		req.Body = input
		req.Headers["Content-Type"] = "application/json"
	} else {
		req.Method = rest.Get
		req.QueryParams = map[string]string{"input": string(input)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return usecase.Response{}, errors.Wrap(err, "waiting for rate limiter")
	}
	res, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		return usecase.Response{}, errors.Wrapf(err, "calling %s", uc.Name)
	}
	return c.decode(uc, res)
}

func (c *Client) decode(uc usecase.UseCase, res *rest.Response) (usecase.Response, error) {
	var env envelope
	if err := json.Unmarshal([]byte(res.Body), &env); err != nil {
		return usecase.Response{}, errors.Errorf("%s: unexpected %d response from backend", uc.Name, res.StatusCode)
	}

	if env.Error != nil {
		typ, ok := errorTypes[env.Error.Data.Code]
		if !ok {
			typ = usecase.ErrorTypeUnknown
		}
		if typ == usecase.ErrorTypeUnknown {
			c.logger.Warn(fmt.Sprintf("cmsrest: %s failed with %s (%d): %s", uc.Name, env.Error.Data.Code, res.StatusCode, env.Error.Message))
		}
		return usecase.Failure(typ, uc.Name, env.Error.Message, usecase.Context{
			"code":       env.Error.Data.Code,
			"httpStatus": res.StatusCode,
		}), nil
	}

	if res.StatusCode >= http.StatusBadRequest || env.Result == nil {
		return usecase.Response{}, errors.Errorf("%s: unexpected %d response from backend", uc.Name, res.StatusCode)
	}

	data := unwrapSuperJSON(env.Result.Data)
	var resp usecase.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return usecase.Response{}, errors.Wrapf(err, "decoding %s response", uc.Name)
	}
	return resp, nil
}

// unwrapSuperJSON strips the {"json": ...} wrapper of superjson encoded payloads.
func unwrapSuperJSON(data json.RawMessage) json.RawMessage {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return data
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return data
	}
	inner, ok := wrapped["json"]
	if !ok {
		return data
	}
	for k := range wrapped {
		if k != "json" && k != "meta" {
			return data
		}
	}
	return inner
}
