package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type sample struct {
	OutTemp float64 `json:"outTemp"`
}

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		decode      func([]byte, any) error
	}{
		{"json default", "/x", "application/json", json.Unmarshal},
		{"msgpack", "/x?format=msgpack", "application/x-msgpack", msgpack.Unmarshal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(t, NewFormatter().WriteResponse(rec, req, sample{OutTemp: 61.5}, map[string]string{"Cache-Control": "max-age=5"}))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, "max-age=5", rec.Header().Get("Cache-Control"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

			var got map[string]any
			require.NoError(t, tt.decode(rec.Body.Bytes(), &got))
			assert.EqualValues(t, 61.5, got["outTemp"])
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	require.NoError(t, NewFormatter().WriteError(rec, req, http.StatusNotFound, "no records"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Not Found", body.Error)
	assert.Equal(t, "no records", body.Message)
}
