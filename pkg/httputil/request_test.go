package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/units", strings.NewReader(`{"name":"North"}`))
		var dest struct {
			Name string `json:"name"`
		}
		require.NoError(t, ParseJSON(r, &dest))
		assert.Equal(t, "North", dest.Name)
	})

	t.Run("invalid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/units", strings.NewReader(`{`))
		var dest map[string]any
		assert.Error(t, ParseJSON(r, &dest))
	})
}

func TestParsePathInt64(t *testing.T) {
	router := mux.NewRouter()
	var got int64
	var gotErr error
	router.HandleFunc("/units/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathInt64(r, "id")
	})

	req := httptest.NewRequest("GET", "/units/42", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, gotErr)
	assert.Equal(t, int64(42), got)

	req = httptest.NewRequest("GET", "/units/abc", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Error(t, gotErr)
}

func TestParseQueryInt64(t *testing.T) {
	r := httptest.NewRequest("GET", "/reports?unit_id=7", nil)
	val, err := ParseQueryInt64(r, "unit_id", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), val)

	r = httptest.NewRequest("GET", "/reports", nil)
	val, err = ParseQueryInt64(r, "unit_id", 0)
	require.NoError(t, err)
	assert.Zero(t, val)

	r = httptest.NewRequest("GET", "/reports?unit_id=x", nil)
	_, err = ParseQueryInt64(r, "unit_id", 0)
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}
