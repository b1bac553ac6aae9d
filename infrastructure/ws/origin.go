package ws

import "net/http"

// originChecker builds the upgrader's CheckOrigin from the configured
// allow-list value. The default "*" allows every origin; anything else is
// matched exactly. Requests without an Origin header (non-browser clients)
// always pass.
func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return origin == allowed
	}
}
