package rider

import (
	"errors"
	"time"
)

// ErrInvalidWindow is returned for an unknown statistics window
var ErrInvalidWindow = errors.New("invalid statistics window")

// CompletedRide is the history record written when a ride completes
type CompletedRide struct {
	RequestID   string    `json:"request_id"`
	RiderID     string    `json:"rider_id"`
	Earnings    float64   `json:"earnings"`
	DistanceKM  float64   `json:"distance_km"`
	Emergency   bool      `json:"emergency"`
	CompletedAt time.Time `json:"completed_at"`
	Rating      *float64  `json:"rating,omitempty"`
}

// Window selects the period that statistics cover
type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

// Since returns the start of the window relative to now
func (w Window) Since(now time.Time) (time.Time, error) {
	switch w {
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case WindowWeek:
		return now.AddDate(0, 0, -7), nil
	case WindowMonth:
		return now.AddDate(0, -1, 0), nil
	case WindowAll, "":
		return time.Time{}, nil
	}
	return time.Time{}, ErrInvalidWindow
}

// Stats summarises a rider's completed rides
type Stats struct {
	RiderID        string  `json:"rider_id"`
	Window         Window  `json:"window"`
	Earnings       float64 `json:"earnings"`
	CompletedRides int     `json:"completed_rides"`
	Rating         float64 `json:"rating"`
	TotalDistance  float64 `json:"total_distance_km"`
	EmergencyRides int     `json:"emergency_rides"`
}

// Summarize aggregates rides completed inside the window. Rating is the mean
// of every rating the rider has received, regardless of window.
func Summarize(riderID string, rides []CompletedRide, window Window, now time.Time) (Stats, error) {
	since, err := window.Since(now)
	if err != nil {
		return Stats{}, err
	}
	if window == "" {
		window = WindowAll
	}

	stats := Stats{RiderID: riderID, Window: window}
	stats.Rating, _ = MeanRating(rides)
	for _, ride := range rides {
		if ride.CompletedAt.Before(since) {
			continue
		}
		stats.Earnings += ride.Earnings
		stats.CompletedRides++
		stats.TotalDistance += ride.DistanceKM
		if ride.Emergency {
			stats.EmergencyRides++
		}
	}
	return stats, nil
}

// MeanRating averages the rated rides. ok is false when none are rated.
func MeanRating(rides []CompletedRide) (mean float64, ok bool) {
	var sum float64
	var n int
	for _, ride := range rides {
		if ride.Rating != nil {
			sum += *ride.Rating
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
