package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"site-attendance-backend/internal/area"
	"site-attendance-backend/internal/attendance"
	"site-attendance-backend/internal/geo"
	"site-attendance-backend/internal/mw"
	"site-attendance-backend/internal/scancode"
	"site-attendance-backend/internal/store"
)

type checkInRequest struct {
	// AreaID pins the area directly; Payload is a scanned code to resolve.
	// With neither the session is recorded without an area, which is allowed.
	AreaID     string   `json:"area_id"`
	Payload    string   `json:"payload"`
	UseNearest bool     `json:"use_nearest"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// CheckIn opens today's attendance session for the authenticated person.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	personID := c.GetString(mw.PersonIDKey)
	projectID := c.Param("project_id")

	var position *geo.Coordinate
	if req.Latitude != nil && req.Longitude != nil {
		position = &geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	var resolved *area.Resolved
	switch {
	case req.AreaID != "" || req.Payload != "":
		catalog, err := h.store.ListWorkAreas(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var decoded scancode.Decoded
		if req.Payload != "" {
			decoded = scancode.Decode(req.Payload)
		}
		if req.AreaID != "" {
			decoded.AreaIDHint = req.AreaID
		}
		resolved = area.Resolve(decoded, catalog)
		if resolved == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": area.ErrNotRecognized.Error()})
			return
		}
	case req.UseNearest && position != nil:
		catalog, err := h.store.ListWorkAreas(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resolved = area.Nearest(*position, catalog)
	}

	session, err := h.attendance.CheckIn(c.Request.Context(), personID, projectID, position, resolved)
	if err != nil {
		if errors.Is(err, attendance.ErrAlreadyCheckedIn) {
			// session is the existing record; return it so the client can
			// show when the person actually checked in.
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "session": session})
			return
		}
		if errors.Is(err, store.ErrDuplicateSession) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, session)
}

type checkOutRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CheckOut closes today's open session for the authenticated person.
func (h *Handler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var position *geo.Coordinate
	if req.Latitude != nil && req.Longitude != nil {
		position = &geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	session, err := h.attendance.CheckOut(c.Request.Context(), c.GetString(mw.PersonIDKey), c.Param("project_id"), position)
	if err != nil {
		if errors.Is(err, attendance.ErrNoOpenSession) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetToday returns the person's session for the current site-local day,
// open or closed.
func (h *Handler) GetToday(c *gin.Context) {
	session, err := h.store.GetSession(
		c.Request.Context(),
		c.GetString(mw.PersonIDKey),
		c.Param("project_id"),
		h.attendance.Today(),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance record for today"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListSessions returns the project's sessions for one day, defaulting to
// today. Supervisors use it as the daily attendance report.
func (h *Handler) ListSessions(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = h.attendance.Today()
	}

	sessions, err := h.attendance.Sessions(c.Request.Context(), c.Param("project_id"), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "sessions": sessions})
}
