// routes.go - Route and middleware registration
package api

import (
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ServerOptions configures the echo instance built by NewServer.
type ServerOptions struct {
	// Password guards every /api route with HTTP basic auth. The username is ignored.
	Password  string
	BodyLimit string
	Logger    *slog.Logger
}

// NewServer builds an echo instance with middleware and all routes registered.
func NewServer(h *Handler, opts ServerOptions) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request handled.",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID)
			return nil
		},
	}))
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	RegisterRoutes(e, h, opts.Password)
	return e
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handler, password string) {
	e.GET("/health", h.HandleHealth)

	apiGroup := e.Group("/api")
	if password != "" {
		apiGroup.Use(middleware.BasicAuth(func(_, supplied string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(supplied), []byte(password)) == 1, nil
		}))
	}

	// Upload tab
	apiGroup.POST("/upload", h.HandleUpload)

	// Data viewer tab
	apiGroup.GET("/dataset", h.HandleDataset)
	apiGroup.GET("/dataset/csv", h.HandleDatasetCSV)
	apiGroup.GET("/dataset/msgpack", h.HandleDatasetMsgpack)
	apiGroup.GET("/artifacts", h.HandleListArtifacts)
	apiGroup.GET("/artifacts/:fingerprint", h.HandleGetArtifact)
	apiGroup.GET("/artifacts/:fingerprint/xml", h.HandleGetArtifactXML)

	// Explore chat tab
	apiGroup.POST("/chat", h.HandleChat)
}
