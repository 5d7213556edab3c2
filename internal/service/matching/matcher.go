package matching

import (
	"math"
	"sort"

	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/rider"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/pkg/logger"
)

// Service ranks riders against a location and orders open requests
type Service struct {
	logger *logger.Logger
	config Config
}

// Config holds matching configuration
type Config struct {
	EmergencyRadiusKM float64 // Radius for emergency auto-assignment
	BrowseRadiusKM    float64 // Default radius for manual browsing
	MaxCandidates     int     // 0 means no limit
}

// Candidate is a rider eligible for a request together with its distance
type Candidate struct {
	Rider      *rider.Rider `json:"rider"`
	DistanceKM float64      `json:"distance_km"`
}

// NewService creates a new matching service
func NewService(log *logger.Logger, config Config) *Service {
	if config.EmergencyRadiusKM <= 0 {
		config.EmergencyRadiusKM = 15
	}
	if config.BrowseRadiusKM <= 0 {
		config.BrowseRadiusKM = 10
	}
	return &Service{
		logger: log,
		config: config,
	}
}

// EmergencyRadius returns the auto-assignment search radius
func (s *Service) EmergencyRadius() float64 {
	return s.config.EmergencyRadiusKM
}

// BrowseRadius returns the default manual browse radius
func (s *Service) BrowseRadius() float64 {
	return s.config.BrowseRadiusKM
}

// Rank returns the online, available riders within radiusKM of ref, nearest
// first. Riders in exclude are skipped. Equal distances fall back to rider id
// so the order is stable.
func (s *Service) Rank(riders []*rider.Rider, ref geo.Point, radiusKM float64, exclude map[string]bool) []Candidate {
	candidates := make([]Candidate, 0, len(riders))
	for _, r := range riders {
		if !r.CanTakeRequests() || exclude[r.ID] {
			continue
		}
		d := CalculateDistance(ref, r.CurrentLocation)
		if d > radiusKM {
			continue
		}
		candidates = append(candidates, Candidate{Rider: r, DistanceKM: d})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKM == candidates[j].DistanceKM {
			return candidates[i].Rider.ID < candidates[j].Rider.ID
		}
		return candidates[i].DistanceKM < candidates[j].DistanceKM
	})

	if s.config.MaxCandidates > 0 && len(candidates) > s.config.MaxCandidates {
		candidates = candidates[:s.config.MaxCandidates]
	}

	s.logger.Debug("Ranked riders",
		logger.Int("eligible", len(candidates)),
		logger.Int("total", len(riders)),
		logger.Float64("radius_km", radiusKM),
	)
	return candidates
}

// Nearest returns the closest eligible rider within radiusKM
func (s *Service) Nearest(riders []*rider.Rider, ref geo.Point, radiusKM float64, exclude map[string]bool) (Candidate, bool) {
	candidates := s.Rank(riders, ref, radiusKM, exclude)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// OpenRequest is a request offered to a browsing rider
type OpenRequest struct {
	Request *transport.Request `json:"request"`
	// DistanceKM is the distance from the rider to the pickup, nil when
	// either position is unknown.
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

// SortForBrowsing orders requests for a rider: emergencies first, then by
// pickup distance when from is given, otherwise newest first. Requests
// without a pickup position sort after those with one.
func SortForBrowsing(requests []*transport.Request, from *geo.Point) []OpenRequest {
	out := make([]OpenRequest, len(requests))
	for i, req := range requests {
		out[i] = OpenRequest{Request: req}
		if from != nil && req.Pickup.Location != nil {
			d := CalculateDistance(*from, *req.Pickup.Location)
			out[i].DistanceKM = &d
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Request.IsEmergency() != b.Request.IsEmergency() {
			return a.Request.IsEmergency()
		}
		if from != nil {
			switch {
			case a.DistanceKM != nil && b.DistanceKM != nil:
				if *a.DistanceKM != *b.DistanceKM {
					return *a.DistanceKM < *b.DistanceKM
				}
			case a.DistanceKM != nil:
				return true
			case b.DistanceKM != nil:
				return false
			}
		}
		return a.Request.RequestedAt.After(b.Request.RequestedAt)
	})
	return out
}

// CalculateDistance calculates haversine distance between two points in kilometers
func CalculateDistance(from, to geo.Point) float64 {
	const earthRadius = 6371 // kilometers

	dLat := toRadians(to.Latitude - from.Latitude)
	dLon := toRadians(to.Longitude - from.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(from.Latitude))*math.Cos(toRadians(to.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
