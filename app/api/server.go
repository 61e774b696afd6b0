package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/season-rank/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured. A nil
// limiter leaves the season endpoints unthrottled.
func NewServer(handler *Handler, apiAccessKey string, limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	// CORS, the season endpoints are read by a browser frontend
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, limiter)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string, limiter *RateLimiter) {
	r.GET("/health", handler.GetHealth)

	// Season documents for the frontend
	v0 := r.Group("/api/v0/season")
	if limiter != nil {
		v0.Use(limiter.Middleware())
	}
	{
		v0.GET("/available", handler.GetAvailableSeasons)
		v0.GET("/:id", handler.GetSeason)
	}

	// Management endpoints (conditionally enabled with authentication)
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.POST("/refresh", handler.APIRefreshAll)
			api.POST("/seasons/:year/:month/refresh", handler.APIRefreshSeason)
			api.GET("/seasons", handler.APIListSeasons)
			api.GET("/scheduler", handler.APISchedulerStatus)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Info("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health":    "/health",
			"available": "/api/v0/season/available",
			"season":    "/api/v0/season/<YYYYMM>",
		}

		if apiAccessKey != "" {
			endpoints["refresh"] = "/api/refresh?force=<bool> (POST, requires X-API-Key header)"
			endpoints["refresh_season"] = "/api/seasons/<year>/<month>/refresh?force=<bool> (POST, requires X-API-Key header)"
			endpoints["seasons"] = "/api/seasons (requires X-API-Key header)"
			endpoints["scheduler"] = "/api/scheduler (requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Season Rank",
			"version":     cfg.GetVersion(),
			"description": "Seasonal anime rankings scraped from Bangumi, one JSON document per season",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
			"documentation": "https://github.com/lysyi3m/season-rank",
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
