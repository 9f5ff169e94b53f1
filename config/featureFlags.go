package config

import (
	"os"
	"strings"
	"time"
)

// SyncPageSize is the number of local members fetched per page during the
// local-to-remote review.
//
// Set via env:
// - CATALOG_SYNC_PAGE_SIZE (default 100)
func SyncPageSize() int {
	n := intFromEnv("CATALOG_SYNC_PAGE_SIZE", 100)
	if n <= 0 {
		return 100
	}
	return n
}

// SyncLockTTL bounds how long one connection's run lock is held in Redis.
//
// Set via env:
// - CATALOG_SYNC_LOCK_TTL_SECONDS (default 600)
func SyncLockTTL() time.Duration {
	n := intFromEnv("CATALOG_SYNC_LOCK_TTL_SECONDS", 600)
	if n <= 0 {
		n = 600
	}
	return time.Duration(n) * time.Second
}

// SyncInline makes the trigger endpoint run the worker in-process instead of
// publishing to Pub/Sub.
//
// Set via env:
// - CATALOG_SYNC_INLINE=true
func SyncInline() bool {
	return EnvBoolDefault("CATALOG_SYNC_INLINE", false)
}

// UnityCatalogRatePerSecond limits outgoing Unity Catalog API calls.
//
// Set via env:
// - UC_RATE_LIMIT_PER_SEC (default 20)
func UnityCatalogRatePerSecond() int {
	n := intFromEnv("UC_RATE_LIMIT_PER_SEC", 20)
	if n <= 0 {
		return 20
	}
	return n
}

// SyncReportBucket is the GCS bucket run reports are archived to. Empty disables archival.
func SyncReportBucket() string {
	return strings.TrimSpace(os.Getenv("CATALOG_SYNC_REPORT_BUCKET"))
}

func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
