package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// settingsKey is the sub-document inside local_config.json that this
// module owns. Sibling keys belong to other parts of the application.
const settingsKey = "tci"

// Store reads and writes the settings document at a fixed path. Keys
// outside the owned sub-document are preserved across saves.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the given document path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load merges defaults, SWLC_* environment overrides, and the on-disk
// document, then validates the result. A missing file is not an error;
// a malformed one is.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := DefaultSettings()
	applyEnvOverrides(&settings)

	doc, err := s.readDocument()
	if err != nil {
		return Settings{}, err
	}
	if raw, ok := doc[settingsKey]; ok {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse %s.%s: %w", s.path, settingsKey, err)
		}
	}

	if err := validateSettings(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Save writes the settings back into the document, leaving sibling
// keys untouched.
func (s *Store) Save(settings Settings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	doc[settingsKey] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) readDocument() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return doc, nil
}

func applyEnvOverrides(settings *Settings) {
	if val := os.Getenv("SWLC_HOST"); val != "" {
		settings.Host = val
	}
	if val := os.Getenv("SWLC_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			settings.Port = port
		}
	}
	if val := os.Getenv("SWLC_PROFILE"); val != "" {
		settings.Profile = val
	}
	if val := os.Getenv("SWLC_SPOT_POLICY"); val != "" {
		settings.DefaultSpotPolicy = SpotPolicy(val)
	}
	if val := os.Getenv("SWLC_SPOT_TTL"); val != "" {
		if ttl, err := strconv.Atoi(val); err == nil {
			settings.SpotTTLSeconds = ttl
		}
	}
}

func validateSettings(settings Settings) error {
	if settings.Host == "" {
		return fmt.Errorf("settings: host must not be empty")
	}
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("settings: port %d out of range", settings.Port)
	}
	switch settings.Profile {
	case "thetis", "expert":
	default:
		return fmt.Errorf("settings: unknown profile %q", settings.Profile)
	}
	switch settings.DefaultSpotPolicy {
	case SpotPolicyTimed, SpotPolicyPersistent:
	default:
		return fmt.Errorf("settings: unknown spot policy %q", settings.DefaultSpotPolicy)
	}
	if settings.SpotTTLSeconds < 0 {
		return fmt.Errorf("settings: spot ttl must not be negative")
	}
	return nil
}

// LoadTiming merges the timing baseline with SWLC_TIMING_* environment
// overrides.
func LoadTiming() *Timing {
	timing := DefaultTiming()

	if val := os.Getenv("SWLC_TIMING_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			timing.ConnectTimeout = d
		}
	}
	if val := os.Getenv("SWLC_TIMING_SWEEP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			timing.SweepInterval = d
		}
	}
	if val := os.Getenv("SWLC_TIMING_WRITE_QUEUE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			timing.WriteQueueSize = n
		}
	}
	if val := os.Getenv("SWLC_TIMING_HEARTBEAT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			timing.HeartbeatInterval = d
		}
	}
	if val := os.Getenv("SWLC_TIMING_HEARTBEAT_JITTER"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			timing.HeartbeatJitter = d
		}
	}
	if val := os.Getenv("SWLC_TIMING_EVENT_BUFFER_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			timing.EventBufferSize = n
		}
	}

	return timing
}
