package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/corrudash/internal/handlers"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// ActionRouter maps the action segment of /prefix/{id}/{action} to a handler
type ActionRouter map[string]RouteHandler

// RouteByMethod dispatches on the request method. Unknown methods get a JSON
// 405 with an Allow header.
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		w.Header().Set("Allow", allowedMethods(routes))
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	handler(w, r)
}

// RouteResource dispatches /prefix/{id} by method and /prefix/{id}/{action}
// by action. Returns false when the path has neither shape or names an
// unknown action; the caller decides how to answer.
func RouteResource(w http.ResponseWriter, r *http.Request, prefix string, methods MethodRouter, actions ActionRouter) bool {
	_, action, ok := splitResource(r.URL.Path, prefix)
	if !ok {
		return false
	}

	if action == "" {
		RouteByMethod(w, r, methods)
		return true
	}

	handler, ok := actions[action]
	if !ok {
		return false
	}
	handler(w, r)
	return true
}

// splitResource splits the path below prefix into an id and an optional
// action. Empty ids and anything nested deeper than one action are rejected.
func splitResource(path, prefix string) (id, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	}
	return "", "", false
}

func allowedMethods(routes MethodRouter) string {
	methods := make([]string, 0, len(routes))
	for method := range routes {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
