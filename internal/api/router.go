package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"storefront/internal/config"
)

type RouterConfig struct {
	Catalog  Catalog
	Orders   Orders
	Guard    SubmissionGuard
	BasePath string
	Admin    config.Admin
	// RateLimit of zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

func newRateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusForbidden, map[string]string{"error": "rate limit identifier missing"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	})
}

// NewRouter wires middleware and routes. The caller starts and shuts it down.
func NewRouter(cfg RouterConfig) (*echo.Echo, error) {
	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	var limited []echo.MiddlewareFunc
	if cfg.RateLimit > 0 {
		limited = append(limited, newRateLimiter(cfg.RateLimit, cfg.RateBurst))
	}

	storefront := NewStorefrontHandler(cfg.Catalog, cfg.Orders, cfg.Guard, cfg.BasePath)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "storefront",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// Routes
	e.GET("/", storefront.Index)
	e.GET("/thanks", storefront.Thanks)
	e.GET("/:id", storefront.Detail)
	e.POST("/order", storefront.PlaceOrder, limited...)

	if !cfg.Admin.Enabled() {
		logger.Warn().Msg("ADMIN_PASSWORD or ADMIN_JWT_SECRET not set, admin area disabled")
		e.GET("/admin", func(c echo.Context) error { return echo.ErrNotFound })
		return e, nil
	}

	admin := NewAdminHandler(cfg.Catalog, cfg.Orders, cfg.Admin)
	e.GET("/admin", storefront.AdminRedirect)
	e.POST("/admin/login", admin.Login, limited...)

	g := e.Group("/admin", echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.Admin.JWTSecret),
		TokenLookup: "header:Authorization:Bearer ,cookie:" + adminCookie,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(AdminClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		},
	}))
	g.GET("/products", admin.ListProducts)
	g.GET("/products/:id", admin.GetProduct)
	g.POST("/products", admin.CreateProduct)
	g.PUT("/products/:id", admin.UpdateProduct)
	g.GET("/orders", admin.ListOrders)
	g.GET("/orders/:id", admin.GetOrder)
	g.POST("/cache/warmup", admin.WarmupCache)

	return e, nil
}
