package config

// SpotPolicy selects the default expiry behavior for new spots.
type SpotPolicy string

const (
	SpotPolicyTimed      SpotPolicy = "timed"
	SpotPolicyPersistent SpotPolicy = "persistent"
)

// Settings is the control-session configuration surface.
type Settings struct {
	Host              string     `json:"host"`
	Port              int        `json:"port"`
	Profile           string     `json:"profile"`
	DefaultSpotPolicy SpotPolicy `json:"default_spot_policy"`
	SpotTTLSeconds    int        `json:"spot_ttl_seconds"`
}

// DefaultSettings returns the baseline settings used when no file or
// environment override is present.
func DefaultSettings() Settings {
	return Settings{
		Host:              "127.0.0.1",
		Port:              40001,
		Profile:           "thetis",
		DefaultSpotPolicy: SpotPolicyTimed,
		SpotTTLSeconds:    120,
	}
}
