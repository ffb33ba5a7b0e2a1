package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"site-attendance-backend/internal/attendance"
	"site-attendance-backend/internal/scan"
	"site-attendance-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	attendance *attendance.Service
	decoder    *scan.Pipeline
	webpush    *webpush.Options
	catalog    *cache.Cache
}

// NewHandler creates a new API handler. decoder handles still-image uploads
// from kiosks and may be nil when no detectors are configured; catalog is
// the response cache flushed when the area catalog changes.
func NewHandler(s store.Store, svc *attendance.Service, decoder *scan.Pipeline, webpushOptions *webpush.Options, catalog *cache.Cache) *Handler {
	return &Handler{
		store:      s,
		attendance: svc,
		decoder:    decoder,
		webpush:    webpushOptions,
		catalog:    catalog,
	}
}
