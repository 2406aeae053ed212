package models

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendMode(t *testing.T) {
	tests := map[string]BackendMode{
		"postgres": BackendModeRelational,
		"mongo":    BackendModeDocument,
		"multi":    BackendModeMulti,
		"memory":   BackendModeMemory,
		"":         BackendModeNone,
		"mysql":    BackendModeNone,
		"none":     BackendModeNone,
	}
	for value, want := range tests {
		assert.Equal(t, want, ParseBackendMode(value), value)
	}

	assert.True(t, BackendModeMulti.NeedsRelational())
	assert.True(t, BackendModeMulti.NeedsDocument())
	assert.False(t, BackendModeDocument.NeedsRelational())
	assert.False(t, BackendModeMemory.NeedsDocument())
}

func TestEnvelopeShape(t *testing.T) {
	body, err := json.Marshal(NewEnvelope(true, "nope", nil))
	require.NoError(t, err)

	assert.JSONEq(t, `{"error":true,"message":"nope","data":null}`, string(body))
}

func TestWriteError(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteError(recorder, http.StatusTeapot, "short and stout")

	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":true,"message":"short and stout","data":null}`, recorder.Body.String())
}
