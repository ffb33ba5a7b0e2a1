package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"site-attendance-backend/internal/area"
	"site-attendance-backend/internal/geo"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// Transition failures, surfaced to the caller for display. Existing state is
// never silently overwritten.
var (
	ErrAlreadyCheckedIn = errors.New("already checked in for this day")
	ErrNoOpenSession    = errors.New("no open session to check out")
)

// AlertDispatcher receives the IDs of sessions recorded outside their
// geofence, for supervisor notification.
type AlertDispatcher interface {
	Dispatch(sessionID string)
}

// Service owns the attendance lifecycle for (person, project, day) keys:
// NoRecord -> Open -> Closed, with Closed terminal. An out-of-geofence
// position is recorded and flagged, never rejected; that soft-enforcement
// policy is deliberate.
type Service struct {
	store  store.Store
	alerts AlertDispatcher
	loc    *time.Location
	now    func() time.Time

	// Per-key locks serialize transitions for one (person, project, day);
	// different keys never contend.
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewService creates the attendance service. loc determines the site-local
// calendar day; alerts may be nil when out-of-area notification is disabled.
func NewService(s store.Store, loc *time.Location, alerts AlertDispatcher) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:  s,
		alerts: alerts,
		loc:    loc,
		now:    time.Now,
		keys:   make(map[string]*sync.Mutex),
	}
}

// Today returns the current site-local calendar day.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format("2006-01-02")
}

// OpenSession returns the person's open session for today, or nil.
func (s *Service) OpenSession(ctx context.Context, personID, projectID string) (*model.AttendanceSession, error) {
	return s.store.GetOpenSession(ctx, personID, projectID, s.Today())
}

// Sessions returns all sessions recorded for a project on the given day.
func (s *Service) Sessions(ctx context.Context, projectID, date string) ([]model.AttendanceSession, error) {
	return s.store.ListSessions(ctx, projectID, date)
}

// CheckIn opens today's session for the person. A resolved area is optional:
// without one the session is created with no position verdict, matching the
// permissive field workflow. A second check-in on the same day fails with
// ErrAlreadyCheckedIn; a storage-level duplicate raced past the lock surfaces
// as store.ErrDuplicateSession and callers treat the two identically.
func (s *Service) CheckIn(ctx context.Context, personID, projectID string, position *geo.Coordinate, resolved *area.Resolved) (*model.AttendanceSession, error) {
	date := s.Today()

	unlock := s.lock(personID, projectID, date)
	defer unlock()

	existing, err := s.store.GetSession(ctx, personID, projectID, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, fmt.Errorf("person %s on %s: %w", personID, date, ErrAlreadyCheckedIn)
	}

	session := &model.AttendanceSession{
		ID:        uuid.NewString(),
		PersonID:  personID,
		ProjectID: projectID,
		Date:      date,
		CheckInAt: s.now().UTC(),
	}
	if position != nil {
		session.CheckInLatitude = &position.Latitude
		session.CheckInLongitude = &position.Longitude
	}
	if resolved != nil {
		areaID := resolved.Area.ID
		session.AreaID = &areaID
		if position != nil {
			v := geo.Evaluate(*position, resolved.Area.Center(), resolved.Area.RadiusMeters)
			session.CheckInDistanceM = &v.DistanceMeters
			session.CheckInWithinArea = &v.WithinRadius
		}
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	if session.OutOfArea() && s.alerts != nil {
		s.alerts.Dispatch(session.ID)
	}
	return session, nil
}

// CheckOut closes today's open session, recomputing the geofence verdict
// against the session's original area: the position may have moved since
// check-in. Without an open session it fails with ErrNoOpenSession; a closed
// session is never recomputed.
func (s *Service) CheckOut(ctx context.Context, personID, projectID string, position *geo.Coordinate) (*model.AttendanceSession, error) {
	date := s.Today()

	unlock := s.lock(personID, projectID, date)
	defer unlock()

	session, err := s.store.GetOpenSession(ctx, personID, projectID, date)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("person %s on %s: %w", personID, date, ErrNoOpenSession)
	}

	out := s.now().UTC()
	hours := out.Sub(session.CheckInAt).Hours()
	if hours < 0 {
		hours = 0
	}
	session.CheckOutAt = &out
	session.WorkedHours = &hours
	if position != nil {
		session.CheckOutLatitude = &position.Latitude
		session.CheckOutLongitude = &position.Longitude
		if session.AreaID != nil {
			workArea, err := s.store.GetWorkArea(ctx, *session.AreaID)
			if err != nil {
				return nil, err
			}
			if workArea != nil {
				v := geo.Evaluate(*position, workArea.Center(), workArea.RadiusMeters)
				session.CheckOutDistanceM = &v.DistanceMeters
				session.CheckOutWithinArea = &v.WithinRadius
			}
		}
	}

	if err := s.store.CloseSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrSessionClosed) {
			return nil, fmt.Errorf("person %s on %s: %w", personID, date, ErrNoOpenSession)
		}
		return nil, err
	}

	if session.CheckOutWithinArea != nil && !*session.CheckOutWithinArea && s.alerts != nil {
		s.alerts.Dispatch(session.ID)
	}
	return session, nil
}

func (s *Service) lock(personID, projectID, date string) func() {
	key := personID + "|" + projectID + "|" + date

	s.mu.Lock()
	m, ok := s.keys[key]
	if !ok {
		m = &sync.Mutex{}
		s.keys[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
