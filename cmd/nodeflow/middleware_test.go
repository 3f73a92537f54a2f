package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/nodeflow/config"
	"github.com/BaSui01/nodeflow/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(Chain(okHandler(), mark("a"), mark("b"), mark("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/workflow", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(types.ErrInternalError), errorCode(t, w))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get("X-Request-ID")
		assert.Regexp(t, `^req-[0-9a-f]{32}$`, id)
		assert.Equal(t, id, seen)
	})

	t.Run("preserved", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "client-42")
		w := serve(h, r)
		assert.Equal(t, "client-42", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "client-42", seen)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders()(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	w := serve(Chain(okHandler(), SecurityHeaders(), RequestID()), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://editor.example"})(okHandler())

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"allowed", http.MethodGet, "https://editor.example", http.StatusOK, "https://editor.example"},
		{"allowed preflight", http.MethodOptions, "https://editor.example", http.StatusNoContent, "https://editor.example"},
		{"unknown origin", http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"unknown preflight", http.MethodOptions, "https://evil.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/workflow", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := serve(h, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	r := httptest.NewRequest(http.MethodOptions, "/workflow", nil)
	r.Header.Set("Origin", "https://editor.example")
	w := serve(CORS(nil)(okHandler()), r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIKeyAuth(t *testing.T) {
	skip := []string{"/health"}

	tests := []struct {
		name       string
		allowQuery bool
		path       string
		header     string
		wantStatus int
	}{
		{"valid header", false, "/workflow", "k1", http.StatusOK},
		{"invalid header", false, "/workflow", "nope", http.StatusUnauthorized},
		{"missing", false, "/workflow", "", http.StatusUnauthorized},
		{"skipped path", false, "/health", "", http.StatusOK},
		{"query rejected", false, "/workflow/events?api_key=k2", "", http.StatusUnauthorized},
		{"query allowed", true, "/workflow/events?api_key=k2", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := APIKeyAuth([]string{"k1", "k2"}, skip, tt.allowQuery, zap.NewNop())(okHandler())
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := serve(h, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrUnauthorized), errorCode(t, w))
			}
		})
	}
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth_HS256(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "nodeflow"}

	var userID string
	var roles []string
	h := JWTAuth(cfg, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ = types.UserID(r.Context())
		roles, _ = types.Roles(r.Context())
	}))

	valid := jwt.MapClaims{
		"iss":     "nodeflow",
		"user_id": "u-1",
		"roles":   []string{"editor"},
		"exp":     time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + signHS256(t, "s3cret", valid), http.StatusOK},
		{"wrong secret", "Bearer " + signHS256(t, "other", valid), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signHS256(t, "s3cret", jwt.MapClaims{"iss": "x", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized},
		{"expired", "Bearer " + signHS256(t, "s3cret", jwt.MapClaims{"iss": "nodeflow", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"not bearer", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, roles = "", nil
			r := httptest.NewRequest(http.MethodGet, "/workflow", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := serve(h, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u-1", userID)
				assert.Equal(t, []string{"editor"}, roles)
			}
		})
	}
}

func TestJWTAuth_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	var userID string
	h := JWTAuth(config.JWTConfig{PublicKey: string(pubPEM)}, nil, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ = types.UserID(r.Context())
		}))

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "u-rsa",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/workflow", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := serve(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-rsa", userID)

	// 未配置 HMAC 密钥时拒绝 HS256
	r = httptest.NewRequest(http.MethodGet, "/workflow", nil)
	r.Header.Set("Authorization", "Bearer "+signHS256(t, "x", jwt.MapClaims{"sub": "u"}))
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)
}

func TestAuthenticate_AnyAuthenticatorPasses(t *testing.T) {
	h := Authenticate([]string{"/health"}, zap.NewNop(),
		APIKeyAuthenticator([]string{"k1"}, false),
		JWTAuthenticator(config.JWTConfig{Secret: "s3cret"}, zap.NewNop()),
	)(okHandler())

	byKey := httptest.NewRequest(http.MethodGet, "/workflow", nil)
	byKey.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, serve(h, byKey).Code)

	byToken := httptest.NewRequest(http.MethodGet, "/workflow", nil)
	byToken.Header.Set("Authorization", "Bearer "+signHS256(t, "s3cret", jwt.MapClaims{"sub": "u"}))
	assert.Equal(t, http.StatusOK, serve(h, byToken).Code)

	neither := httptest.NewRequest(http.MethodGet, "/workflow", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, neither).Code)

	preflight := httptest.NewRequest(http.MethodOptions, "/workflow", nil)
	assert.Equal(t, http.StatusOK, serve(h, preflight).Code)
}

func TestRateLimiter(t *testing.T) {
	h := RateLimiter(t.Context(), 1, 2, zap.NewNop())(okHandler())

	request := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/workflow", nil)
		r.RemoteAddr = addr
		return serve(h, r).Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, request("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1:1002"))
	// 每个 IP 独立计数
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1000"))
}

type httpCall struct {
	method string
	path   string
	status int
	bytes  int64
}

type fakeHTTPRecorder struct {
	mu    sync.Mutex
	calls []httpCall
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, responseSize int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, httpCall{method, path, status, responseSize})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	h := MetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/workflow/executions/0b6c2f0e-1d2a-4c55-9a41-7d1f0f3a2b10", nil))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, httpCall{http.MethodGet, "/workflow/executions/:id", http.StatusNotFound, 7}, rec.calls[0])
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":                              "/health",
		"/workflow":                            "/workflow",
		"/workflow/events/ws":                  "/workflow/events/ws",
		"/workflow/nodes/greeter/autocomplete": "/workflow/nodes/:id/autocomplete",
		"/workflow/executions/abc":             "/workflow/executions/:id",
		"/unknown/12345":                       "/unknown/:id",
		"/unknown/deadbeefcafe":                "/unknown/:id",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestOTelTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), RequestID(), OTelTracing(tp.Tracer("test")))

	serve(h, httptest.NewRequest(http.MethodGet, "/workflow/executions/xyz", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /workflow/executions/:id", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(http.StatusServiceUnavailable), attrs["http.response.status_code"])
	assert.Contains(t, attrs, "http.request_id")
}
