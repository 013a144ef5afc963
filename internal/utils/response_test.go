package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, CodeCapacityExceeded, "slot is full")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "slot is full", body["error"])
	assert.Equal(t, CodeCapacityExceeded, body["code"])
	assert.NotContains(t, body, "data")
}

func TestSuccessResponse(t *testing.T) {
	resp := SuccessResponse("ok", []int{1})
	assert.True(t, resp.Success)
	assert.Equal(t, []int{1}, resp.Data)
	assert.False(t, resp.Timestamp.IsZero())
}
