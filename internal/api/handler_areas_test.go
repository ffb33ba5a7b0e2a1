package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-attendance-backend/internal/model"
)

func TestPutAreas_RequiresAuth(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doJSON(t, router, "PUT", "/api/projects/p1/areas", "", []map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAreaCatalog_RoundTrip(t *testing.T) {
	router, _ := newTestEnv(t)
	seedCatalog(t, router)

	w := doJSON(t, router, "GET", "/api/projects/p1/areas", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var areas []model.WorkArea
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &areas))
	require.Len(t, areas, 2)
	assert.Equal(t, "North Gate", areas[0].Name)
	require.Len(t, areas[0].Aliases, 1)
	assert.Equal(t, "NG", areas[0].Aliases[0].Alias)

	// Another project has its own, empty catalog.
	w = doJSON(t, router, "GET", "/api/projects/p2/areas", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &areas))
	assert.Empty(t, areas)
}

func TestPutAreas_FlushesCachedReads(t *testing.T) {
	router, _ := newTestEnv(t)
	seedCatalog(t, router)

	// Prime the response cache.
	w := doJSON(t, router, "GET", "/api/projects/p1/areas", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	update := []map[string]interface{}{
		{"id": "a1", "name": "North Gate B", "latitude": 45.4642, "longitude": 9.19, "radius_meters": 200},
	}
	w = doJSON(t, router, "PUT", "/api/projects/p1/areas", signToken(t, "admin"), update)
	require.Equal(t, http.StatusNoContent, w.Code)

	// The cached catalog must not survive the write.
	w = doJSON(t, router, "GET", "/api/projects/p1/areas", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var areas []model.WorkArea
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &areas))
	require.Len(t, areas, 1)
	assert.Equal(t, "North Gate B", areas[0].Name)
}

func TestResolveArea(t *testing.T) {
	router, _ := newTestEnv(t)
	seedCatalog(t, router)

	t.Run("by scan code with verdict", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/api/projects/p1/areas/resolve", "", map[string]interface{}{
			"payload": "GATE-A1", "latitude": 45.4645, "longitude": 9.1903,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp resolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "a1", resp.Area.ID)
		assert.EqualValues(t, "scan_code", resp.MatchedBy)
		require.NotNil(t, resp.Verdict)
		assert.True(t, resp.Verdict.WithinRadius)
	})

	t.Run("by envelope area hint", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/api/projects/p1/areas/resolve", "", map[string]interface{}{
			"payload": `{"area":"a2"}`,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp resolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "a2", resp.Area.ID)
		assert.EqualValues(t, "explicit_id", resp.MatchedBy)
		assert.Nil(t, resp.Verdict)
	})

	t.Run("still image decoded server side", func(t *testing.T) {
		image := base64.StdEncoding.EncodeToString([]byte("GATE-A1\n"))
		w := doJSON(t, router, "POST", "/api/projects/p1/areas/resolve", "", map[string]interface{}{
			"image_base64": image,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp resolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "a1", resp.Area.ID)
	})

	t.Run("unknown payload", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/api/projects/p1/areas/resolve", "", map[string]interface{}{
			"payload": "NO-SUCH-AREA",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("empty request", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/api/projects/p1/areas/resolve", "", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestNearestArea(t *testing.T) {
	router, _ := newTestEnv(t)
	seedCatalog(t, router)

	w := doJSON(t, router, "GET", "/api/projects/p1/areas/nearest?latitude=45.4790&longitude=9.2090", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp resolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a2", resp.Area.ID)
	assert.EqualValues(t, "nearest", resp.MatchedBy)
	require.NotNil(t, resp.Verdict)

	// A project without areas has no nearest one.
	w = doJSON(t, router, "GET", "/api/projects/p9/areas/nearest?latitude=1&longitude=1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, "GET", "/api/projects/p1/areas/nearest", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
