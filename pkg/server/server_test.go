package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"partner-incentives/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
)

func TestNewHttpServerServesEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	cfg := &config.Config{AppName: "incentives"}
	cfg.Server.Addr = "0"

	srv, err := NewHttpServer(Params{Config: cfg, Handler: r})
	require.NoError(t, err)
	require.Nil(t, srv.TLSConfig)
	require.Equal(t, ":0", srv.Addr)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "pong", w.Body.String())
}

func TestNewHttpServerMissingCertFails(t *testing.T) {
	cfg := &config.Config{}
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = t.TempDir() + "/missing.crt"
	cfg.TLS.KeyPath = t.TempDir() + "/missing.key"

	_, err := NewHttpServer(Params{Config: cfg, Handler: gin.New()})
	require.Error(t, err)
}

func TestCertReloaderEmpty(t *testing.T) {
	_, err := (&certReloader{}).get(nil)
	require.Error(t, err)
}

func TestWithOptionBuildsServer(t *testing.T) {
	opts, err := WithOption(&config.Config{}, noop.NewTracerProvider())
	require.NoError(t, err)
	require.Len(t, opts, 3)

	srv := NewGRPCServer(opts)
	t.Cleanup(srv.Stop)
	require.IsType(t, &grpc.Server{}, srv)
}
