// Package envconfig centralises every environment-variable-driven
// setting the engine reads, following the same pattern as upstream's own
// config package: one typed accessor function per variable, a documented
// default, and an EnvVar table so the CLI can print them all.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Var returns an environment variable with surrounding whitespace and
// quoting stripped, so `NSQE_NODE_TIMEOUT="30s"` and `NSQE_NODE_TIMEOUT=30s`
// behave identically.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel reports the configured slog level name (debug/info/warn/error).
// Default: info. NSQE_DEBUG=1 is a shorthand for debug.
func LogLevel() string {
	if b, _ := strconv.ParseBool(Var("NSQE_DEBUG")); b {
		return "debug"
	}
	if s := Var("NSQE_LOG_LEVEL"); s != "" {
		return s
	}
	return "info"
}

// SuspectAfter is how long a node may go without a heartbeat before the
// cluster coordinator moves it Healthy -> Suspect. Default: 5s.
func SuspectAfter() time.Duration {
	return durationWithDefault("NSQE_SUSPECT_AFTER", 5*time.Second)
}

// NodeTimeout is how long a Suspect node may remain unresponsive before
// it is Evicted. Default: 15s.
func NodeTimeout() time.Duration {
	return durationWithDefault("NSQE_NODE_TIMEOUT", 15*time.Second)
}

// PlacementRetries bounds how many candidate nodes the coordinator will
// try before giving up on a placement. Default: 3.
func PlacementRetries() int {
	return intWithDefault("NSQE_PLACEMENT_RETRIES", 3)
}

// CacheCapacityBytes is the total size of the KV-cache arena. Default: 2GiB.
func CacheCapacityBytes() uint64 {
	return uint64WithDefault("NSQE_CACHE_CAPACITY_BYTES", 2<<30)
}

// SpotSize is the fixed physical region size, in bytes, that holds
// exactly one CacheBlock. Default: 64KiB.
func SpotSize() uint64 {
	return uint64WithDefault("NSQE_SPOT_SIZE_BYTES", 64<<10)
}

// RoutingCacheCapacity bounds the number of entries in the routing
// decision LRU. Default: 4096.
func RoutingCacheCapacity() int {
	return intWithDefault("NSQE_ROUTING_CACHE_CAPACITY", 4096)
}

// RoutingCacheTTL bounds how long a cached RoutingDecision may be served
// before a miss is forced. Default: 5m.
func RoutingCacheTTL() time.Duration {
	return durationWithDefault("NSQE_ROUTING_CACHE_TTL", 5*time.Minute)
}

// MaxQueue bounds the number of pending inference requests. Default: 512.
func MaxQueue() int {
	return intWithDefault("NSQE_MAX_QUEUE", 512)
}

// AutoWiden reports whether the Quantizer should widen bits for an
// offending layer on AccuracyFloorBreached rather than aborting.
// Default: true.
func AutoWiden() bool {
	return boolWithDefault("NSQE_AUTO_WIDEN", true)
}

// Federated reports whether routing admits remote workers. Default: false.
func Federated() bool {
	return boolWithDefault("NSQE_FEDERATED", false)
}

// PrivacyEpsilon is the bound on Laplace noise applied to exported
// salience scores when privacy mode is enabled. Zero disables noise.
// Default: 0.
func PrivacyEpsilon() float64 {
	s := Var("NSQE_PRIVACY_EPSILON")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		slog.Warn("invalid NSQE_PRIVACY_EPSILON, disabling privacy noise", "value", s)
		return 0
	}
	return f
}

// Host is the control plane API's listen address. Default: 127.0.0.1:11511.
func Host() string {
	if s := Var("NSQE_HOST"); s != "" {
		return s
	}
	return "127.0.0.1:11511"
}

// AllowedOrigins is a comma separated list of allowed CORS origins.
func AllowedOrigins() []string {
	s := Var("NSQE_ORIGINS")
	if s == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func boolWithDefault(key string, def bool) bool {
	if s := Var(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		slog.Warn("invalid environment variable, using default", "key", key, "default", def)
	}
	return def
}

func intWithDefault(key string, def int) int {
	if s := Var(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		slog.Warn("invalid environment variable, using default", "key", key, "default", def)
	}
	return def
}

func uint64WithDefault(key string, def uint64) uint64 {
	if s := Var(key); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
		slog.Warn("invalid environment variable, using default", "key", key, "default", def)
	}
	return def
}

func durationWithDefault(key string, def time.Duration) time.Duration {
	if s := Var(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		slog.Warn("invalid environment variable, using default", "key", key, "default", def)
	}
	return def
}
