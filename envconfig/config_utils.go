package envconfig

import "fmt"

// EnvVar describes one environment variable for --help output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every recognised environment variable, its current
// value, and a human description; Values is built from it.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"NSQE_DEBUG":                   {"NSQE_DEBUG", LogLevel() == "debug", "Show additional debug information"},
		"NSQE_LOG_LEVEL":               {"NSQE_LOG_LEVEL", LogLevel(), "Log level (debug, info, warn, error)"},
		"NSQE_SUSPECT_AFTER":           {"NSQE_SUSPECT_AFTER", SuspectAfter(), "Missed heartbeat duration before a node is marked Suspect"},
		"NSQE_NODE_TIMEOUT":            {"NSQE_NODE_TIMEOUT", NodeTimeout(), "Duration a Suspect node may remain unresponsive before eviction"},
		"NSQE_PLACEMENT_RETRIES":       {"NSQE_PLACEMENT_RETRIES", PlacementRetries(), "Maximum placement candidates tried before giving up"},
		"NSQE_CACHE_CAPACITY_BYTES":    {"NSQE_CACHE_CAPACITY_BYTES", CacheCapacityBytes(), "Total size of the KV-cache arena"},
		"NSQE_SPOT_SIZE_BYTES":         {"NSQE_SPOT_SIZE_BYTES", SpotSize(), "Fixed physical region size backing one CacheBlock"},
		"NSQE_ROUTING_CACHE_CAPACITY":  {"NSQE_ROUTING_CACHE_CAPACITY", RoutingCacheCapacity(), "Maximum entries in the routing decision cache"},
		"NSQE_ROUTING_CACHE_TTL":       {"NSQE_ROUTING_CACHE_TTL", RoutingCacheTTL(), "Maximum age of a cached routing decision"},
		"NSQE_MAX_QUEUE":               {"NSQE_MAX_QUEUE", MaxQueue(), "Maximum number of queued inference requests"},
		"NSQE_AUTO_WIDEN":              {"NSQE_AUTO_WIDEN", AutoWiden(), "Widen bits on AccuracyFloorBreached instead of aborting"},
		"NSQE_FEDERATED":               {"NSQE_FEDERATED", Federated(), "Admit remote workers into routing decisions"},
		"NSQE_PRIVACY_EPSILON":         {"NSQE_PRIVACY_EPSILON", PrivacyEpsilon(), "Bound on Laplace noise applied to exported salience scores"},
		"NSQE_HOST":                    {"NSQE_HOST", Host(), "Listen address for the control plane API"},
		"NSQE_ORIGINS":                 {"NSQE_ORIGINS", AllowedOrigins(), "Comma separated list of allowed CORS origins"},
	}
}

// Values renders AsMap with stringified values, for diagnostics output.
func Values() map[string]string {
	vals := make(map[string]string, len(AsMap()))
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
