package ratelimit

import (
	"net/http"
	"strings"
)

// LoopbackIdentity is used when no forwarding header names the caller
const LoopbackIdentity = "127.0.0.1"

// ClientIdentity derives the rate limit key from forwarding headers in a
// fixed order: X-Forwarded-For (first entry), X-Real-IP, CF-Connecting-IP.
// Every one of these can be forged by a client; the deployment must have a
// trusted proxy overwrite them.
func ClientIdentity(h http.Header) string {
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(h.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if cfIP := strings.TrimSpace(h.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	return LoopbackIdentity
}
