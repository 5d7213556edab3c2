package pricing

import (
	"testing"

	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/stretchr/testify/assert"
)

// TestEstimateCost_UrgencyAndService tests the tariff table
func TestEstimateCost_UrgencyAndService(t *testing.T) {
	service := NewService(DefaultConfig())

	tests := []struct {
		name        string
		urgency     transport.Urgency
		serviceType transport.ServiceType
		distanceKm  float64
		expected    float64
	}{
		{
			name:        "Emergency 8km",
			urgency:     transport.UrgencyEmergency,
			serviceType: transport.ServiceEmergency,
			distanceKm:  8,
			expected:    866, // 300*1.5 + 8*40*1.3
		},
		{
			name:        "Normal consultation 5km",
			urgency:     transport.UrgencyNormal,
			serviceType: transport.ServiceConsultation,
			distanceKm:  5,
			expected:    500, // 300 + 5*40
		},
		{
			name:        "Semi urgent routine 3km",
			urgency:     transport.UrgencySemiUrgent,
			serviceType: transport.ServiceRoutine,
			distanceKm:  3,
			expected:    492, // 360 + 132
		},
		{
			name:        "ANC discount",
			urgency:     transport.UrgencyNormal,
			serviceType: transport.ServiceANC,
			distanceKm:  5,
			expected:    450, // 500*0.9
		},
		{
			name:        "Vaccination emergency discount",
			urgency:     transport.UrgencyEmergency,
			serviceType: transport.ServiceVaccination,
			distanceKm:  8,
			expected:    779, // round(866*0.9)
		},
		{
			name:        "Zero distance",
			urgency:     transport.UrgencyNormal,
			serviceType: transport.ServiceRoutine,
			distanceKm:  0,
			expected:    300,
		},
		{
			name:        "Rounds to nearest unit",
			urgency:     transport.UrgencyNormal,
			serviceType: transport.ServiceRoutine,
			distanceKm:  2.34,
			expected:    394, // 300 + 93.6
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := service.EstimateCost(tt.urgency, tt.serviceType, tt.distanceKm)
			assert.Equal(t, tt.expected, cost)
		})
	}
}

// TestEstimateCost_MonotonicInDistance tests that longer trips always cost more
func TestEstimateCost_MonotonicInDistance(t *testing.T) {
	service := NewService(DefaultConfig())
	urgencies := []transport.Urgency{transport.UrgencyNormal, transport.UrgencySemiUrgent, transport.UrgencyEmergency}
	services := []transport.ServiceType{transport.ServiceANC, transport.ServiceEmergency, transport.ServiceRoutine}

	for _, u := range urgencies {
		for _, st := range services {
			prev := service.EstimateCost(u, st, 0)
			for d := 1.0; d <= 50; d++ {
				cost := service.EstimateCost(u, st, d)
				assert.Greater(t, cost, prev, "%s/%s at %.0fkm", u, st, d)
				prev = cost
			}
		}
	}
}

// TestBreakdown_Components tests the fare breakdown
func TestBreakdown_Components(t *testing.T) {
	service := NewService(DefaultConfig())

	b := service.Breakdown(transport.UrgencyEmergency, transport.ServiceANC, 10)
	assert.InDelta(t, 450.0, b.BaseCost, 1e-9)
	assert.InDelta(t, 520.0, b.DistanceCost, 1e-9)
	assert.InDelta(t, 97.0, b.Discount, 1e-9)
	assert.Equal(t, 873.0, b.Total)
}

// TestEstimateMinutes tests travel time estimation
func TestEstimateMinutes(t *testing.T) {
	service := NewService(DefaultConfig())

	assert.Equal(t, 0, service.EstimateMinutes(0))
	assert.Equal(t, 16, service.EstimateMinutes(8))
	assert.Equal(t, 1, service.EstimateMinutes(0.1))
	assert.Equal(t, 30, service.EstimateMinutes(15))
}

// BenchmarkEstimateCost benchmarks fare estimation
func BenchmarkEstimateCost(b *testing.B) {
	service := NewService(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		service.EstimateCost(transport.UrgencyEmergency, transport.ServiceEmergency, 8)
	}
}
