package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServer_CORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		corsOrigin     string
		method         string
		nextStatus     int
		expectedStatus int
		shouldCallNext bool
	}{
		{
			name:           "GET request with CORS headers",
			corsOrigin:     "*",
			method:         http.MethodGet,
			nextStatus:     http.StatusOK,
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "DELETE request with specific origin",
			corsOrigin:     "https://grafana.example.com",
			method:         http.MethodDelete,
			nextStatus:     http.StatusNoContent,
			expectedStatus: http.StatusNoContent,
			shouldCallNext: true,
		},
		{
			name:           "OPTIONS request (preflight)",
			corsOrigin:     "*",
			method:         http.MethodOptions,
			expectedStatus: http.StatusOK,
			shouldCallNext: false,
		},
		{
			name:           "error in next handler",
			corsOrigin:     "http://localhost:3000",
			method:         http.MethodPost,
			nextStatus:     http.StatusInternalServerError,
			expectedStatus: http.StatusInternalServerError,
			shouldCallNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{corsOrigin: tt.corsOrigin}

			nextCalled := false
			corsHandler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				w.WriteHeader(tt.nextStatus)
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			w := httptest.NewRecorder()
			corsHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.corsOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
			assert.Equal(t, tt.shouldCallNext, nextCalled)
		})
	}
}

func TestServer_CORSMiddleware_RecordsMetrics(t *testing.T) {
	server := &Server{corsOrigin: "*"}
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/metrics-test", "I'm a teapot")
	before := testutil.ToFloat64(counter)

	handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-test", nil))

	assert.InDelta(t, before+1, testutil.ToFloat64(counter), 1e-9)
}

func TestServer_CORSMiddleware_Chaining(t *testing.T) {
	server := &Server{corsOrigin: "https://test.com"}

	var callOrder []string
	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		callOrder = append(callOrder, "final")
		w.WriteHeader(http.StatusOK)
	}
	testMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			callOrder = append(callOrder, "test")
			next(w, r)
		}
	}

	handler := server.corsMiddleware(testMiddleware(finalHandler))
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"test", "final"}, callOrder)
	assert.Equal(t, "https://test.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func BenchmarkServer_CORSMiddleware(b *testing.B) {
	server := &Server{corsOrigin: "*"}
	handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	for b.Loop() {
		handler(httptest.NewRecorder(), req)
	}
}
