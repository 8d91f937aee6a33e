package schedule

import (
	"strconv"
	"time"
)

// Station is one broadcast-schedule entry: who is on the air, where,
// and until when. ScheduledEnd is nil when the schedule source did not
// carry an end time for the transmission.
type Station struct {
	Callsign     string     `json:"callsign"`
	FrequencyHz  int64      `json:"frequencyHz"`
	Mode         string     `json:"mode"`
	ScheduledEnd *time.Time `json:"scheduledEnd,omitempty"`
}

// Key identifies a station for spot bookkeeping. Two schedule entries
// with the same callsign on the same frequency are the same spot.
func (s Station) Key() string {
	return s.Callsign + "|" + strconv.FormatInt(s.FrequencyHz, 10)
}

// Source is the read-only view the control core has of the external
// schedule provider.
type Source interface {
	Stations() []Station
}
