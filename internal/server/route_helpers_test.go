package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitResource(t *testing.T) {
	tests := []struct {
		path   string
		id     string
		action string
		ok     bool
	}{
		{"/api/jobs/J1", "J1", "", true},
		{"/api/jobs/J1/", "J1", "", true},
		{"/api/jobs/J1/pause", "J1", "pause", true},
		{"/api/jobs/", "", "", false},
		{"/api/jobs/J1/pause/now", "", "", false},
	}

	for _, tt := range tests {
		id, action, ok := splitResource(tt.path, jobsPrefix)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.id, id, tt.path)
		assert.Equal(t, tt.action, action, tt.path)
	}
}

func TestRouteResource(t *testing.T) {
	var hit string
	record := func(name string) RouteHandler {
		return func(w http.ResponseWriter, r *http.Request) { hit = name }
	}
	methods := MethodRouter{http.MethodGet: record("get"), http.MethodPut: record("put")}
	actions := ActionRouter{"pause": record("pause")}

	route := func(method, path string) (*httptest.ResponseRecorder, bool) {
		hit = ""
		rec := httptest.NewRecorder()
		return rec, RouteResource(rec, httptest.NewRequest(method, path, nil), jobsPrefix, methods, actions)
	}

	_, ok := route(http.MethodGet, "/api/jobs/J1")
	assert.True(t, ok)
	assert.Equal(t, "get", hit)

	_, ok = route(http.MethodPost, "/api/jobs/J1/pause")
	assert.True(t, ok)
	assert.Equal(t, "pause", hit)

	_, ok = route(http.MethodPost, "/api/jobs/J1/explode")
	assert.False(t, ok)
	assert.Empty(t, hit)

	rec, ok := route(http.MethodDelete, "/api/jobs/J1")
	assert.True(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, PUT", rec.Header().Get("Allow"))
}
