package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/attendance"
	"site-attendance-backend/internal/mw"
	"site-attendance-backend/internal/scan"
	"site-attendance-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, svc *attendance.Service, decoder *scan.Pipeline, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	auth := mw.Auth(cfg.Auth.JWTSecret)

	// Catalog reads are cached; catalog writes flush the cache store.
	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	catalogCache := cache.New(ttl, 2*ttl)
	caching := mw.Cache(catalogCache, ttl)

	handler := NewHandler(s, svc, decoder, webpushOptions, catalogCache)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Area catalog
		api.GET("/projects/:project_id/areas", caching, handler.GetAreas)
		api.PUT("/projects/:project_id/areas", auth, handler.PutAreas)
		api.POST("/projects/:project_id/areas/resolve", handler.ResolveArea)
		api.GET("/projects/:project_id/areas/nearest", handler.NearestArea)

		// Attendance
		api.POST("/projects/:project_id/attendance/check-in", auth, handler.CheckIn)
		api.POST("/projects/:project_id/attendance/check-out", auth, handler.CheckOut)
		api.GET("/projects/:project_id/attendance/today", auth, handler.GetToday)
		api.GET("/projects/:project_id/attendance", auth, handler.ListSessions)

		// Push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
