package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// CheckOrigin builds a websocket upgrader origin policy. An empty list or a
// "*" entry allows every origin. Entries are full origins
// ("https://chat.example.com") or bare hosts ("chat.example.com").
// Requests without an Origin header come from non-browser clients and pass.
func CheckOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	origins := make(map[string]struct{}, len(allowed))
	hosts := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimRight(strings.TrimSpace(a), "/"))
		if a == "*" {
			return func(*http.Request) bool { return true }
		}
		if strings.Contains(a, "://") {
			origins[a] = struct{}{}
		} else if a != "" {
			hosts[a] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		origin = strings.ToLower(origin)
		if _, ok := origins[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[u.Host]
		return ok
	}
}
