package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/TsutomuTakai/pp-case-api/internal/cache"
	"github.com/TsutomuTakai/pp-case-api/internal/handler"
	"github.com/TsutomuTakai/pp-case-api/internal/middleware"
)

// RoutePolicy declares how the request gate treats a route. Policies are
// evaluated in a fixed order: rate-limit → cache-lookup → auth → handler
// → cache-store.
type RoutePolicy struct {
	RequireAuth bool
	Quota       *middleware.Quota
	Cache       bool // response caching; only safe on unauthenticated reads
}

type route struct {
	method  string
	path    string
	policy  RoutePolicy
	handler gin.HandlerFunc
}

func quota(requests int64, window time.Duration) *middleware.Quota {
	return &middleware.Quota{Requests: requests, Window: window}
}

func SetupRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	authMiddleware *middleware.AuthMiddleware,
	limiter middleware.RateLimiter,
	cacheStore cache.Store,
	logger *slog.Logger,
) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies(nil)

	r.Use(middleware.RequestID())
	r.Use(cors.Default())
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		// Full detail stays in the log; the client gets a generic message
		logger.Error("❌ [Router] Panic recovered", "error", err, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "An unexpected internal error occurred"})
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes := []route{
		{http.MethodPost, "/login", RoutePolicy{Quota: quota(5, time.Minute)}, authHandler.Login},
		{http.MethodGet, "/v1/users", RoutePolicy{Quota: quota(10, time.Minute), Cache: true}, userHandler.List},
		{http.MethodPost, "/v1/users", RoutePolicy{RequireAuth: true, Quota: quota(5, time.Minute)}, userHandler.Create},
		{http.MethodGet, "/v1/users/:id", RoutePolicy{RequireAuth: true, Quota: quota(20, time.Minute)}, userHandler.Get},
		{http.MethodPut, "/v1/users/:id", RoutePolicy{RequireAuth: true, Quota: quota(5, time.Minute)}, userHandler.Update},
		{http.MethodDelete, "/v1/users/:id", RoutePolicy{RequireAuth: true, Quota: quota(2, time.Minute)}, userHandler.Delete},
	}

	for _, rt := range routes {
		r.Handle(rt.method, rt.path, buildChain(rt, authMiddleware, limiter, cacheStore, logger)...)
	}

	return r
}

// buildChain assembles the middleware chain for one route in gate order
func buildChain(
	rt route,
	authMiddleware *middleware.AuthMiddleware,
	limiter middleware.RateLimiter,
	cacheStore cache.Store,
	logger *slog.Logger,
) []gin.HandlerFunc {
	var chain []gin.HandlerFunc

	if rt.policy.Quota != nil {
		chain = append(chain, middleware.RateLimit(limiter, logger, rt.method+" "+rt.path, *rt.policy.Quota))
	}
	if rt.policy.Cache {
		chain = append(chain, middleware.CacheListing(cacheStore, logger))
	}
	if rt.policy.RequireAuth {
		chain = append(chain, authMiddleware.RequireAuth())
	}

	return append(chain, rt.handler)
}
