package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"site-attendance-backend/internal/model"
)

// ErrDuplicateSession is returned when a session insert violates the one
// session per (person, project, date) constraint. Callers treat it exactly
// like an already-checked-in answer that arrived late.
var ErrDuplicateSession = errors.New("attendance session already exists for this person and day")

// ErrSessionClosed is returned when a close is attempted on a session that
// has already been checked out.
var ErrSessionClosed = errors.New("attendance session is already closed")

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	ListWorkAreas(ctx context.Context, projectID string) ([]model.WorkArea, error)
	ReplaceWorkAreas(ctx context.Context, projectID string, areas []model.WorkArea) error
	GetWorkArea(ctx context.Context, id string) (*model.WorkArea, error)

	GetSession(ctx context.Context, personID, projectID, date string) (*model.AttendanceSession, error)
	GetOpenSession(ctx context.Context, personID, projectID, date string) (*model.AttendanceSession, error)
	CreateSession(ctx context.Context, session *model.AttendanceSession) error
	CloseSession(ctx context.Context, session *model.AttendanceSession) error
	ListSessions(ctx context.Context, projectID, date string) ([]model.AttendanceSession, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context, projectID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ListWorkAreas returns the full area catalog for a project, aliases included.
func (s *gormStore) ListWorkAreas(ctx context.Context, projectID string) ([]model.WorkArea, error) {
	var areas []model.WorkArea
	err := s.db.WithContext(ctx).
		Preload("Aliases").
		Where("project_id = ?", projectID).
		Order("name").
		Find(&areas).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list work areas for project %s: %w", projectID, err)
	}
	return areas, nil
}

func (s *gormStore) GetWorkArea(ctx context.Context, id string) (*model.WorkArea, error) {
	var area model.WorkArea
	err := s.db.WithContext(ctx).Preload("Aliases").First(&area, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load work area %s: %w", id, err)
	}
	return &area, nil
}

// ReplaceWorkAreas makes the stored catalog for a project match the given
// list: areas are upserted, their aliases replaced, and areas no longer in
// the list removed, all in one transaction.
func (s *gormStore) ReplaceWorkAreas(ctx context.Context, projectID string, areas []model.WorkArea) error {
	ids := make([]string, 0, len(areas))
	for i := range areas {
		areas[i].ProjectID = projectID
		ids = append(ids, areas[i].ID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Where("project_id = ?", projectID)
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		if err := stale.Delete(&model.WorkArea{}).Error; err != nil {
			return fmt.Errorf("failed to remove stale work areas: %w", err)
		}

		if len(areas) == 0 {
			return nil
		}

		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"project_id", "name", "latitude", "longitude", "radius_meters", "scan_code", "updated_at",
			}),
		}).Create(&areas).Error; err != nil {
			return fmt.Errorf("failed to upsert work areas: %w", err)
		}

		if err := tx.Where("area_id IN ?", ids).Delete(&model.AreaAlias{}).Error; err != nil {
			return fmt.Errorf("failed to clear area aliases: %w", err)
		}
		var aliases []model.AreaAlias
		for i := range areas {
			for _, a := range areas[i].Aliases {
				aliases = append(aliases, model.AreaAlias{AreaID: areas[i].ID, Alias: a.Alias})
			}
		}
		if len(aliases) > 0 {
			if err := tx.Create(&aliases).Error; err != nil {
				return fmt.Errorf("failed to insert area aliases: %w", err)
			}
		}
		return nil
	})
}

// GetSession returns the day's session regardless of its state, or nil when
// the person has no record for that day.
func (s *gormStore) GetSession(ctx context.Context, personID, projectID, date string) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := s.db.WithContext(ctx).
		Where("person_id = ? AND project_id = ? AND date = ?", personID, projectID, date).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// GetOpenSession returns the day's session only while it is still open.
func (s *gormStore) GetOpenSession(ctx context.Context, personID, projectID, date string) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := s.db.WithContext(ctx).
		Where("person_id = ? AND project_id = ? AND date = ? AND check_out_at IS NULL", personID, projectID, date).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load open session: %w", err)
	}
	return &session, nil
}

// CreateSession inserts a new open session. The unique index on
// (person_id, project_id, date) is the last line of defense against two
// racing check-ins; a violation surfaces as ErrDuplicateSession.
func (s *gormStore) CreateSession(ctx context.Context, session *model.AttendanceSession) error {
	err := s.db.WithContext(ctx).Create(session).Error
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return fmt.Errorf("person %s on %s: %w", session.PersonID, session.Date, ErrDuplicateSession)
	}
	return fmt.Errorf("failed to create session: %w", err)
}

// CloseSession persists the check-out fields. The WHERE guard keeps a
// closed session from ever being recomputed.
func (s *gormStore) CloseSession(ctx context.Context, session *model.AttendanceSession) error {
	res := s.db.WithContext(ctx).
		Model(&model.AttendanceSession{}).
		Where("id = ? AND check_out_at IS NULL", session.ID).
		Updates(map[string]any{
			"check_out_at":          session.CheckOutAt,
			"check_out_latitude":    session.CheckOutLatitude,
			"check_out_longitude":   session.CheckOutLongitude,
			"check_out_distance_m":  session.CheckOutDistanceM,
			"check_out_within_area": session.CheckOutWithinArea,
			"worked_hours":          session.WorkedHours,
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close session %s: %w", session.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrSessionClosed)
	}
	return nil
}

// ListSessions returns all sessions recorded for a project on a given day.
func (s *gormStore) ListSessions(ctx context.Context, projectID, date string) ([]model.AttendanceSession, error) {
	var sessions []model.AttendanceSession
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND date = ?", projectID, date).
		Order("check_in_at").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"project_id", "p256dh", "auth"}),
	}).Create(sub).Error
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

func (s *gormStore) ListSubscriptions(ctx context.Context, projectID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&subs).Error
	return subs, err
}

// isDuplicateKey recognizes uniqueness violations across the drivers in use
// (pgx in production, sqlite in tests).
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
