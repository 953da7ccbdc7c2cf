package models

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitReset parses a non-success response's headers and, if they
// contain fields which would suggest the caller is being rate-limited,
// returns how long until the limit resets.
func RateLimitReset(h http.Header) (time.Duration, bool) {
	raw := h.Get("X-Ratelimit-Reset")
	if raw == "" {
		return 0, false
	}

	reset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	return time.Unix(reset, 0).Sub(time.Now().UTC()), true
}
