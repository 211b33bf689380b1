package ratelimit

import "strconv"

// formatInt64 formata valores dos headers X-RateLimit-* e Retry-After.
func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
