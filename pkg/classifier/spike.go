package classifier

import "time"

const (
	// SpikeMinOccurrences is the count a record must exceed to be a spike.
	SpikeMinOccurrences = 10
	// SpikeMinVelocity is the events-per-minute rate a record must exceed to be a spike.
	SpikeMinVelocity = 5.0
	// SaturatedVelocity stands in for an infinite rate when all occurrences share a timestamp.
	SaturatedVelocity = 999.0
)

// Spike describes the recurrence rate of a grouped error.
type Spike struct {
	Velocity float64 `json:"velocity"`
	IsSpike  bool    `json:"is_spike"`
}

// DetectSpike computes events per minute between firstSeen and lastSeen.
func DetectSpike(count int64, firstSeen, lastSeen time.Time) Spike {
	seconds := int64(lastSeen.Sub(firstSeen) / time.Second)

	var velocity float64
	switch {
	case seconds > 0:
		velocity = float64(count) / float64(seconds) * 60
	case count > 1:
		velocity = SaturatedVelocity
	}

	return Spike{
		Velocity: velocity,
		IsSpike:  count > SpikeMinOccurrences && velocity > SpikeMinVelocity,
	}
}
