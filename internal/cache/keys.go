// Package cache centralises Redis key construction and TTL policy so the
// store and router never format keys ad hoc.
package cache

import (
	"strings"
	"time"
)

// Namespace is the Redis key prefix for the data engine.
const Namespace = "dataengine"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts TTL seconds into durations, with defaults for zeros.
func NewTTLSet(short, medium, long int) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(short, 10*time.Second),
		Medium: durationOrDefault(medium, time.Minute),
		Long:   durationOrDefault(long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// QuoteLatestKey stores the latest standardized quote per instrument.
func QuoteLatestKey(class, code string) string {
	return formatKey("quote", "latest", class, code)
}

// SymbolMetaKey stores directory metadata per instrument.
func SymbolMetaKey(class, code string) string {
	return formatKey("symbol", class, code)
}

// DirectorySyncKey marks the last directory refresh per asset class.
func DirectorySyncKey(class string) string {
	return formatKey("sync", "directory", class)
}

// QuoteTTL returns the short-lived TTL for quote keys.
func QuoteTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// SymbolMetaTTL returns the TTL for directory metadata keys.
func SymbolMetaTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}
