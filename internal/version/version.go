package version

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
	GOOS      = "unknown"
	GOARCH    = "unknown"
)

// ServiceName identifies this binary in exported resource attributes.
const ServiceName = "statsexporter"

// Full returns the version string in the format "release (commit)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Release, GitCommit)
}

// FullWithPlatform returns the version string with platform information.
func FullWithPlatform() string {
	return fmt.Sprintf(
		"%s %s (commit: %s, %s/%s)",
		ServiceName, Release, GitCommit, GOOS, GOARCH,
	)
}

// ResourceAttributes describes this build for the metric resource.
// instanceID distinguishes concurrent processes of the same release.
func ResourceAttributes(instanceID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(Release),
		attribute.String("vcs.commit", GitCommit),
	}

	if instanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(instanceID))
	}

	return attrs
}
