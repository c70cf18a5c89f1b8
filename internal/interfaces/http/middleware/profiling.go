package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// ProfilingConfig controls which requests get profiling labels.
type ProfilingConfig struct {
	Enabled bool
	// SkipPaths lists exact paths excluded from labeling, typically probes.
	SkipPaths []string
	// SkipPathPrefixes excludes whole subtrees such as /debug.
	SkipPathPrefixes []string
}

// DefaultProfilingConfig labels everything except probe and debug endpoints.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:          true,
		SkipPaths:        []string{"/health", "/healthz", "/ready", "/metrics"},
		SkipPathPrefixes: []string{"/debug"},
	}
}

// Profiling applies DefaultProfilingConfig.
func Profiling() gin.HandlerFunc {
	return ProfilingWithConfig(DefaultProfilingConfig())
}

// ProfilingWithConfig runs each request under Pyroscope labels so profiles
// can be filtered by controller, route, method and store. Labels stick to
// the goroutine for the duration of the handler chain.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passthrough
	}

	skip := func(path string) bool {
		for _, exact := range cfg.SkipPaths {
			if path == exact {
				return true
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		if skip(c.Request.URL.Path) {
			c.Next()
			return
		}

		telemetry.WithProfilingLabels(c.Request.Context(), profileLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// profileLabels derives the label set for one request. Every label is
// low cardinality: the route pattern stands in for the raw path, and the
// store ID only appears on single-store routes where the fleet size
// bounds it.
func profileLabels(c *gin.Context) map[string]string {
	labels := make(map[string]string, 4)

	if method := c.Request.Method; method != "" {
		labels[telemetry.ProfilingLabelMethod] = method
	}

	route := c.FullPath()
	if route != "" {
		labels[telemetry.ProfilingLabelRoute] = route
	}
	if controller := controllerSegment(route); controller != "" {
		labels[telemetry.ProfilingLabelController] = controller
	}
	if strings.Contains(route, "/stores/:id") {
		labels[telemetry.ProfilingLabelStoreID] = c.Param("id")
	}

	return labels
}

// controllerSegment picks the resource name out of a route pattern, so
// "/api/v1/stores/:id/status" maps to "stores".
func controllerSegment(route string) string {
	for _, part := range strings.Split(route, "/") {
		switch {
		case part == "" || part == "api":
		case versionSegment(part):
		case strings.HasPrefix(part, ":") || strings.HasPrefix(part, "{"):
		default:
			return part
		}
	}
	return ""
}

// versionSegment reports whether a path segment looks like v1, v2, ...
func versionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
