package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/VirtualSpec/pkg/logger"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordHTTPRequest records metrics for an HTTP request
	RecordHTTPRequest(method, path, status string, duration time.Duration)

	// IncRequestsInFlight increments the in-flight requests counter
	IncRequestsInFlight()

	// DecRequestsInFlight decrements the in-flight requests counter
	DecRequestsInFlight()

	// RecordDBQuery records metrics for a database query
	RecordDBQuery(operation, table string, duration time.Duration, err error)

	// RecordOptimization records one queryset optimization pass
	RecordOptimization(virtualModel string, lookupCount int, duration time.Duration, err error)

	// RecordValidationFailure records a serializer/virtual-model completeness failure
	RecordValidationFailure(virtualModel, serializer string)

	// RecordAccessViolation records a guarded access to an unresolved virtual field
	RecordAccessViolation(virtualModel, field string)

	// RecordPanic records a recovered panic
	RecordPanic(location string)

	// Handler returns an HTTP handler for exposing metrics (e.g., /metrics endpoint)
	Handler() http.Handler
}

// globalProvider is the global metrics provider
var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider
func GetProvider() Provider {
	if globalProvider == nil {
		// Return no-op provider if none is set
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *NoOpProvider) IncRequestsInFlight()                                                  {}
func (n *NoOpProvider) DecRequestsInFlight()                                                  {}
func (n *NoOpProvider) RecordDBQuery(operation, table string, duration time.Duration, err error) {
}
func (n *NoOpProvider) RecordOptimization(virtualModel string, lookupCount int, duration time.Duration, err error) {
}
func (n *NoOpProvider) RecordValidationFailure(virtualModel, serializer string) {}
func (n *NoOpProvider) RecordAccessViolation(virtualModel, field string)        {}
func (n *NoOpProvider) RecordPanic(location string)                             {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
