package httptransport

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/mergington/internal/config"
)

func TestChainRunsFirstMiddlewareOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	rr := httptest.NewRecorder()
	CORS("")(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/activities", nil))
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusTeapot, rr.Code)

	rr = httptest.NewRecorder()
	CORS("http://localhost:5173")(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/activities", nil))
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(log.New(&buf, "", 0))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/activities/Unknown/signup", nil))
	require.Contains(t, buf.String(), "POST /activities/Unknown/signup 404")
}

func TestNewServerAppliesConfigAndMiddleware(t *testing.T) {
	var logs bytes.Buffer
	cfg := config.Config{
		HTTPAddress:  ":9999",
		CORSOrigin:   "http://localhost:3000",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	srv := NewServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), log.New(&logs, "", 0))

	require.Equal(t, ":9999", srv.Addr)
	require.Equal(t, 2*time.Second, srv.ReadTimeout)
	require.Equal(t, 3*time.Second, srv.WriteTimeout)
	require.Equal(t, idleTimeout, srv.IdleTimeout)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/activities/Chess%20Club/signup", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, logs.String(), "POST /activities/Chess Club/signup 418")

	logs.Reset()
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/activities", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Contains(t, logs.String(), "OPTIONS /activities 204", "preflights are logged too")
}
