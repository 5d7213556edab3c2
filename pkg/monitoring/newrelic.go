package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// NewRelicApp wraps the New Relic application. A disabled app is safe to call;
// every recorder becomes a no-op.
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return Disabled(), nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// Disabled returns an app that records nothing
func Disabled() *NewRelicApp {
	return &NewRelicApp{nil, false}
}

func (nr *NewRelicApp) active() bool {
	return nr != nil && nr.enabled && nr.Application != nil
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.active() {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.active() {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown flushes and stops the agent
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.active() {
		return
	}
	nr.Application.Shutdown(timeout)
}

// RecordRequestCreated records a new transport request
func (nr *NewRelicApp) RecordRequestCreated(urgency, serviceType string, estimatedCost float64) {
	nr.RecordCustomEvent("TransportRequestCreated", map[string]interface{}{
		"urgency":        urgency,
		"service_type":   serviceType,
		"estimated_cost": estimatedCost,
	})
}

// RecordAssignment records a rider being attached to a request
func (nr *NewRelicApp) RecordAssignment(mode string, distanceKM float64, latencyMs float64) {
	nr.RecordCustomEvent("RiderAssigned", map[string]interface{}{
		"mode":        mode,
		"distance_km": distanceKM,
	})
	nr.RecordCustomMetric("custom/dispatch/assignment_latency_ms", latencyMs)
}

// RecordRideCompleted records ride completion
func (nr *NewRelicApp) RecordRideCompleted(requestID string, cost, distance float64, emergency bool) {
	nr.RecordCustomEvent("RideCompleted", map[string]interface{}{
		"request_id": requestID,
		"cost":       cost,
		"distance":   distance,
		"emergency":  emergency,
	})
}

// RecordPaymentProcessed records a settled or failed payment
func (nr *NewRelicApp) RecordPaymentProcessed(amount float64, method, status string) {
	nr.RecordCustomEvent("PaymentProcessed", map[string]interface{}{
		"amount": amount,
		"method": method,
		"status": status,
	})
}

// RecordCreditAssessment records a recomputed credit score
func (nr *NewRelicApp) RecordCreditAssessment(score int, trustLevel string) {
	nr.RecordCustomEvent("CreditAssessment", map[string]interface{}{
		"score":       score,
		"trust_level": trustLevel,
	})
	nr.RecordCustomMetric("custom/credit/score", float64(score))
}

// RecordDatabasePoolStats records database connection pool statistics
func (nr *NewRelicApp) RecordDatabasePoolStats(stats map[string]interface{}) {
	if totalConns, ok := stats["total_connections"].(int32); ok {
		nr.RecordCustomMetric("custom/db/total_connections", float64(totalConns))
	}
	if idleConns, ok := stats["idle_connections"].(int32); ok {
		nr.RecordCustomMetric("custom/db/idle_connections", float64(idleConns))
	}
	if acquiredConns, ok := stats["acquired_connections"].(int32); ok {
		nr.RecordCustomMetric("custom/db/acquired_connections", float64(acquiredConns))
	}
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr.active()
}
