// Package integration provides a reusable test harness for end-to-end
// testing of the gatehoused server. It starts a full HTTP server from YAML
// definitions with in-memory stores and a test JWT issuer.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gatehouse-io/gatehouse/definition"
	"github.com/gatehouse-io/gatehouse/engine"
	"github.com/gatehouse-io/gatehouse/hook"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/idempotency"
	"github.com/gatehouse-io/gatehouse/internal/transport"
	"github.com/gatehouse-io/gatehouse/model"
	"github.com/gatehouse-io/gatehouse/store"
)

// TestHarness runs a complete server instance against in-memory stores.
type TestHarness struct {
	t      *testing.T
	Server *httptest.Server
	Store  *store.MemoryRequestStore
}

// HarnessOption customizes harness construction.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	hooks      map[string]model.HookDescriptor
	validators []model.NamedValidator
	rules      map[string]model.Rule
}

// WithHooks registers hook implementations available to loaded definitions.
func WithHooks(hooks map[string]model.HookDescriptor) HarnessOption {
	return func(c *harnessConfig) { c.hooks = hooks }
}

// WithRules registers assignment rules available to loaded definitions.
func WithRules(rules map[string]model.Rule) HarnessOption {
	return func(c *harnessConfig) { c.rules = rules }
}

// NewTestHarness writes the given YAML definitions to a temp directory,
// loads them through the production loader, and starts an httptest server
// with the full router and JWT verification enabled.
func NewTestHarness(t *testing.T, definitions map[string]string, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	dir := t.TempDir()
	for name, body := range definitions {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write definition %s: %v", name, err)
		}
	}

	loader := definition.NewLoader(
		definition.WithHooks(hc.hooks),
		definition.WithValidators(hc.validators...),
		definition.WithRules(hc.rules),
	)
	defs, err := loader.LoadAll([]string{dir})
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}

	dispatcher := hook.NewDispatcher(nil, hook.NewSupervisor(nil))
	engines := make([]*engine.Engine, 0, len(defs))
	for _, def := range defs {
		eng, err := engine.New(def, dispatcher)
		if err != nil {
			t.Fatalf("engine for %s: %v", def.ID, err)
		}
		engines = append(engines, eng)
	}

	t.Setenv(testSecretEnv, testSecret)
	cfg := config.Defaults()
	cfg.Auth = config.AuthConfig{
		Issuer:    testIssuer,
		Audience:  testAudience,
		SecretEnv: testSecretEnv,
	}

	st := store.NewMemoryRequestStore()
	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Registry:    engine.NewRegistry(engines...),
		Store:       st,
		Idempotency: idempotency.NewMemoryStore(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{t: t, Server: server, Store: st}
}

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.request(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.request(http.MethodPost, path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST with extra headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.request(http.MethodPost, path, body, token, headers)
}

func (h *TestHarness) request(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, h.Server.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// AssertStatus fails the test if the response status differs from want. The
// body is included in the failure message and the response is consumed.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d, body %s", resp.StatusCode, want, body)
	}
}

// ParseJSON decodes the response body into v and closes the body.
func (h *TestHarness) ParseJSON(resp *http.Response, v any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}
