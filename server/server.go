// Package server exposes the table maintenance operations over HTTP so
// schedulers can trigger them without shelling out to the CLI.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lsjoeberg/deltactl/commitlock"
	"github.com/lsjoeberg/deltactl/delta"
	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/gologger"
	"github.com/lsjoeberg/deltactl/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

var logger = gologger.NewLogger()

type HTTPServer struct {
	Echo *echo.Echo

	// lockPool is non-nil when a lock DSN is configured, s3 tables commit
	// under its lease
	lockPool *pgxpool.Pool
}

type CustomValidator struct {
	validator *validator.Validate
}

func StartHTTPServer(lockPool *pgxpool.Pool) *HTTPServer {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", utils.HTTP_PORT))
	if err != nil {
		logger.Error().Err(err).Msg("error creating tcp listener, exiting")
		os.Exit(1)
	}
	s := &HTTPServer{
		Echo:     echo.New(),
		lockPool: lockPool,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.JSONSerializer = &utils.NoEscapeJSONSerializer{}

	s.Echo.Use(CreateReqContext)
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(middleware.CORS())
	s.Echo.Validator = &CustomValidator{validator: validator.New()}

	// technical - no auth
	s.Echo.GET("/hc", s.HealthCheck)

	tables := s.Echo.Group("/tables")
	tables.POST("/compact", ccHandler(s.CompactHandler))
	tables.POST("/zorder", ccHandler(s.ZOrderHandler))
	tables.POST("/vacuum", ccHandler(s.VacuumHandler))
	tables.POST("/checkpoint", ccHandler(s.CheckpointHandler))
	tables.POST("/expire", ccHandler(s.ExpireLogsHandler))
	tables.POST("/properties", ccHandler(s.SetPropertiesHandler))
	tables.GET("/schema", ccHandler(s.SchemaHandler))
	tables.GET("/details", ccHandler(s.DetailsHandler))

	s.Echo.Listener = listener
	go func() {
		logger.Info().Msg("starting h2c server on " + listener.Addr().String())
		err := s.Echo.StartH2CServer("", &http2.Server{})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start h2c server, exiting")
			os.Exit(1)
		}
	}()

	return s
}

// openTable opens uri with the commit lock attached for stores that need
// one.
func (s *HTTPServer) openTable(ctx context.Context, uri string, storageOptions map[string]string) (*delta.Table, error) {
	var lock deltalog.Locker
	if s.lockPool != nil && strings.HasPrefix(uri, "s3://") {
		lock = commitlock.New(s.lockPool, uri, 0)
	}
	return delta.Open(ctx, uri, storageOptions, lock)
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(s); err != nil {
		return err
	}
	return nil
}

func (*HTTPServer) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	return err
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			// default handler
			c.Error(err)
		}
		stop := time.Since(start)
		// Log otherwise
		logger := zerolog.Ctx(c.Request().Context())
		req := c.Request()
		res := c.Response()

		p := req.URL.Path
		if p == "" {
			p = "/"
		}

		cl := req.Header.Get(echo.HeaderContentLength)
		if cl == "" {
			cl = "0"
		}
		logger.Debug().Str("method", req.Method).Str("remote_ip", c.RealIP()).Str("req_uri", req.RequestURI).Str("handler_path", c.Path()).Str("path", p).Int("status", res.Status).Int64("latency_ns", int64(stop)).Str("protocol", req.Proto).Str("bytes_in", cl).Int64("bytes_out", res.Size).Msg("req received")
		return nil
	}
}
