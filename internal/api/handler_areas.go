package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"site-attendance-backend/internal/area"
	"site-attendance-backend/internal/geo"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/scan"
	"site-attendance-backend/internal/scancode"
)

// areaPayload is the wire form of one catalog entry.
type areaPayload struct {
	ID           string   `json:"id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMeters float64  `json:"radius_meters" binding:"required,gt=0"`
	ScanCode     string   `json:"scan_code"`
	Aliases      []string `json:"aliases"`
}

// GetAreas handles the GET /api/projects/{project_id}/areas request.
func (h *Handler) GetAreas(c *gin.Context) {
	areas, err := h.store.ListWorkAreas(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, areas)
}

// PutAreas replaces the project's whole area catalog with the submitted
// list and flushes the cached catalog reads.
func (h *Handler) PutAreas(c *gin.Context) {
	var req []areaPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	areas := make([]model.WorkArea, 0, len(req))
	for _, p := range req {
		a := model.WorkArea{
			ID:           p.ID,
			Name:         p.Name,
			Latitude:     p.Latitude,
			Longitude:    p.Longitude,
			RadiusMeters: p.RadiusMeters,
			ScanCode:     p.ScanCode,
		}
		for _, alias := range p.Aliases {
			a.Aliases = append(a.Aliases, model.AreaAlias{Alias: alias})
		}
		areas = append(areas, a)
	}

	if err := h.store.ReplaceWorkAreas(c.Request.Context(), c.Param("project_id"), areas); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.catalog != nil {
		h.catalog.Flush()
	}
	c.Status(http.StatusNoContent)
}

type resolveRequest struct {
	// Payload is the scanned text; ImageBase64 carries a still capture for
	// server-side decoding instead. Exactly one of the two is expected.
	Payload     string   `json:"payload"`
	ImageBase64 string   `json:"image_base64"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type resolveResponse struct {
	Area      model.WorkArea `json:"area"`
	MatchedBy area.MatchKind `json:"matched_by"`
	Verdict   *geo.Verdict   `json:"verdict,omitempty"`
}

// ResolveArea matches a scanned payload (or a still image decoded
// server-side) against the project catalog. An unmatched payload is an
// explicit 422; the caller decides whether to proceed without an area.
func (h *Handler) ResolveArea(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := req.Payload
	if payload == "" && req.ImageBase64 != "" {
		if h.decoder == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": scan.ErrNoDetectors.Error()})
			return
		}
		frame, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
			return
		}
		code, ok := h.decoder.DecodeStill(frame)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no code found in image"})
			return
		}
		payload = code
	}
	if payload == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload or image_base64 is required"})
		return
	}

	catalog, err := h.store.ListWorkAreas(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resolved := area.Resolve(scancode.Decode(payload), catalog)
	if resolved == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": area.ErrNotRecognized.Error()})
		return
	}

	resp := resolveResponse{Area: resolved.Area, MatchedBy: resolved.MatchedBy}
	if req.Latitude != nil && req.Longitude != nil {
		v := geo.Evaluate(
			geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
			resolved.Area.Center(), resolved.Area.RadiusMeters,
		)
		resp.Verdict = &v
	}
	c.JSON(http.StatusOK, resp)
}

// NearestArea returns the catalog area closest to the given position. It is
// the manual fallback for workers whose code will not scan.
func (h *Handler) NearestArea(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}

	catalog, err := h.store.ListWorkAreas(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	position := geo.Coordinate{Latitude: lat, Longitude: lon}
	resolved := area.Nearest(position, catalog)
	if resolved == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project has no work areas"})
		return
	}

	v := geo.Evaluate(position, resolved.Area.Center(), resolved.Area.RadiusMeters)
	c.JSON(http.StatusOK, resolveResponse{
		Area:      resolved.Area,
		MatchedBy: resolved.MatchedBy,
		Verdict:   &v,
	})
}
