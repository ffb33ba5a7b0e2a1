package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/attendance"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/scan"
	"site-attendance-backend/internal/store"
)

const testSecret = "test-secret"

func newTestEnv(t *testing.T) (*gin.Engine, store.Store) {
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.WorkArea{},
		&model.AreaAlias{},
		&model.AttendanceSession{},
		&model.PushSubscription{},
	))

	st := store.NewGormStore(db)
	svc := attendance.NewService(st, time.UTC, nil)
	decoder := scan.NewPipeline(nil, []scan.Detector{scan.TextDetector{}}, 0)

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 60
	cfg.Auth.JWTSecret = testSecret

	router := NewRouter(cfg, st, svc, decoder, &webpush.Options{VAPIDPublicKey: "test-public-key"})
	return router, st
}

func signToken(t *testing.T, personID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"person_id": personID})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedCatalog installs a two-area catalog for project p1 through the API.
func seedCatalog(t *testing.T, router *gin.Engine) {
	payload := []map[string]interface{}{
		{
			"id": "a1", "name": "North Gate",
			"latitude": 45.4642, "longitude": 9.19, "radius_meters": 150,
			"scan_code": "GATE-A1", "aliases": []string{"NG"},
		},
		{
			"id": "a2", "name": "Warehouse",
			"latitude": 45.48, "longitude": 9.21, "radius_meters": 80,
		},
	}
	w := doJSON(t, router, "PUT", "/api/projects/p1/areas", signToken(t, "admin"), payload)
	require.Equal(t, 204, w.Code)
}
