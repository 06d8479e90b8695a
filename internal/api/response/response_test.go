package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/lmsbridge/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"operation": "create_users"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "create_users", data["operation"])
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"job_id": "j1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "j1", data["job_id"])
}

func TestCollection(t *testing.T) {
	w := httptest.NewRecorder()
	items := []map[string]string{{"row": "1"}, {"row": "2"}}

	response.Collection(w, items, response.Page(1, 2, 5))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"].([]any), 2)

	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["page"])
	assert.Equal(t, float64(2), meta["limit"])
	assert.Equal(t, float64(5), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestPage(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		limit   int
		total   int
		hasNext bool
	}{
		{"first of many", 1, 50, 120, true},
		{"exact last page", 3, 40, 120, false},
		{"past the end", 5, 50, 120, false},
		{"empty", 1, 50, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := response.Page(tt.page, tt.limit, tt.total)
			assert.Equal(t, tt.hasNext, meta.HasNext)
			assert.Equal(t, tt.total, meta.Total)
		})
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusUnprocessableEntity, response.CodeIngestError, "No data rows",
		map[string]string{"filename": "users.csv"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INGEST_ERROR", errObj["code"])
	assert.Equal(t, "No data rows", errObj["message"])
	assert.Equal(t, "users.csv", errObj["details"].(map[string]any)["filename"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Job not found", nil)

	errObj := decode(t, w)["error"].(map[string]any)
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	response.BadRequest(w, "limit must be an integer")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
	assert.Equal(t, "limit must be an integer", errObj["message"])
}

func TestInternal(t *testing.T) {
	w := httptest.NewRecorder()
	response.Internal(w, "Failed to load job")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
}
