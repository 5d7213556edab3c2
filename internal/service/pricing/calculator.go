package pricing

import (
	"math"

	"github.com/gocomet/afya-transport/internal/domain/transport"
)

// Service handles fare and travel time estimation
type Service struct {
	config Config
}

// Multiplier scales the base cost and the per-km rate
type Multiplier struct {
	Base  float64
	PerKM float64
}

// Config holds pricing configuration
type Config struct {
	BaseCost         float64
	PerKMRate        float64
	Urgency          map[transport.Urgency]Multiplier
	MaternalDiscount float64 // applied to anc and vaccination trips
	AverageSpeedKMH  float64
}

// DefaultConfig returns the standard community tariff
func DefaultConfig() Config {
	return Config{
		BaseCost:  300,
		PerKMRate: 40,
		Urgency: map[transport.Urgency]Multiplier{
			transport.UrgencyNormal:     {Base: 1.0, PerKM: 1.0},
			transport.UrgencySemiUrgent: {Base: 1.2, PerKM: 1.1},
			transport.UrgencyEmergency:  {Base: 1.5, PerKM: 1.3},
		},
		MaternalDiscount: 0.9,
		AverageSpeedKMH:  30,
	}
}

// FareBreakdown represents the breakdown of a fare
type FareBreakdown struct {
	BaseCost     float64 `json:"base_cost"`
	DistanceCost float64 `json:"distance_cost"`
	Discount     float64 `json:"discount"`
	Total        float64 `json:"total"`
}

// NewService creates a new pricing service
func NewService(config Config) *Service {
	return &Service{config: config}
}

// Breakdown calculates the fare components for a trip
func (s *Service) Breakdown(urgency transport.Urgency, serviceType transport.ServiceType, distanceKM float64) FareBreakdown {
	m, ok := s.config.Urgency[urgency]
	if !ok {
		m = Multiplier{Base: 1, PerKM: 1}
	}

	base := s.config.BaseCost * m.Base
	distance := distanceKM * s.config.PerKMRate * m.PerKM
	subtotal := base + distance

	factor := 1.0
	if serviceType == transport.ServiceANC || serviceType == transport.ServiceVaccination {
		factor = s.config.MaternalDiscount
	}

	total := math.Round(subtotal * factor)
	return FareBreakdown{
		BaseCost:     base,
		DistanceCost: distance,
		Discount:     subtotal - subtotal*factor,
		Total:        total,
	}
}

// EstimateCost returns the rounded fare for a trip
func (s *Service) EstimateCost(urgency transport.Urgency, serviceType transport.ServiceType, distanceKM float64) float64 {
	return s.Breakdown(urgency, serviceType, distanceKM).Total
}

// EstimateMinutes returns the travel time at the average speed, rounded up
func (s *Service) EstimateMinutes(distanceKM float64) int {
	if distanceKM <= 0 || s.config.AverageSpeedKMH <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKM / s.config.AverageSpeedKMH * 60))
}
