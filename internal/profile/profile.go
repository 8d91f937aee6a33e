package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Profile identifies the control-protocol dialect of the peer
// application. It is selected by configuration and fixed for the
// lifetime of a session; it is never inferred from the wire.
type Profile string

const (
	// ProfileThetis is the Thetis (OpenHPSDR) dialect. Its spot
	// grammar is confirmed against current Thetis builds.
	ProfileThetis Profile = "thetis"

	// ProfileExpert is the ExpertSDR/SunSDR dialect. Its spot and
	// mode-forcing grammar has not been confirmed by the vendor; the
	// formatter marks those commands with a quirk so callers report
	// degraded success instead of assuming peer behavior.
	ProfileExpert Profile = "expert"
)

// ParseProfile parses a configuration token into a Profile.
func ParseProfile(s string) (Profile, error) {
	switch Profile(strings.ToLower(strings.TrimSpace(s))) {
	case ProfileThetis:
		return ProfileThetis, nil
	case ProfileExpert:
		return ProfileExpert, nil
	default:
		return "", &IntentError{Code: ErrInvalidIntent, Reason: fmt.Sprintf("unknown profile %q", s)}
	}
}

// Command is a single formatted wire command. Quirk is non-empty when
// the dialect's behavior for this command is documented as unreliable;
// the command is still valid to send, but "sent" must not be reported
// as "peer behavior confirmed".
type Command struct {
	Text  string
	Quirk string
}

// SpotIntent carries everything a spot command embeds. UTCTime is
// supplied by the caller so formatting stays a pure function. Payload,
// when non-empty, is embedded verbatim as the structured spot payload;
// otherwise the formatter builds one from the remaining fields.
type SpotIntent struct {
	Callsign    string
	Mode        string
	FrequencyHz int64
	TTLSeconds  int  // 0 means persistent
	Timed       bool // false means the spot never auto-expires
	Comment     string
	UTCTime     time.Time
	Payload     json.RawMessage
}

// Formatter maps intents to wire commands for one dialect.
type Formatter interface {
	Profile() Profile

	// Tune formats a VFO-set command for channel 0, sub-index 0.
	Tune(frequencyHz int64) (Command, error)

	// SetMode formats a demodulation-mode command.
	SetMode(mode string) (Command, error)

	// Mute formats the dialect's audio mute toggle.
	Mute(muted bool) (Command, error)

	// Spot formats a spot announcement.
	Spot(intent SpotIntent) (Command, error)

	// ClearSpot formats the removal of a previously sent spot.
	ClearSpot(callsign string) (Command, error)
}

// NewFormatter returns the formatter for the given profile.
func NewFormatter(p Profile) (Formatter, error) {
	switch p {
	case ProfileThetis:
		return &ThetisFormatter{}, nil
	case ProfileExpert:
		return &ExpertFormatter{}, nil
	default:
		return nil, &IntentError{Code: ErrInvalidIntent, Reason: fmt.Sprintf("unknown profile %q", p)}
	}
}

// spotModes are the demodulation tokens the spot grammar accepts.
// Unknown tokens fall back to ssb, matching peer behavior for
// broadcast-schedule spots.
var spotModes = map[string]bool{
	"am":  true,
	"fm":  true,
	"lsb": true,
	"usb": true,
	"ssb": true,
	"cw":  true,
}

const (
	maxCallsignLen  = 12
	fallbackSpotTag = "M0SWL"
)

// sanitizeCallsign normalizes a station name into a spot tag: upper
// case, restricted charset, bounded length. Commas and semicolons must
// never survive because they break the frame grammar.
func sanitizeCallsign(callsign string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(callsign)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '/', r == ' ':
			b.WriteRune(r)
		}
	}
	tag := strings.TrimSpace(b.String())
	if len(tag) > maxCallsignLen {
		tag = strings.TrimSpace(tag[:maxCallsignLen])
	}
	if tag == "" {
		return fallbackSpotTag
	}
	return tag
}

// normalizeSpotMode maps a mode token to its spot representation.
func normalizeSpotMode(mode string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	if !spotModes[m] {
		return "ssb"
	}
	return m
}

// normalizeSetMode validates a mode token for mode-set commands.
func normalizeSetMode(mode string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		return "", &IntentError{Code: ErrInvalidIntent, Reason: "empty mode"}
	}
	if !spotModes[m] {
		return "", &IntentError{Code: ErrInvalidIntent, Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	return m, nil
}

// validateFrequency rejects frequencies the VFO grammar cannot carry.
func validateFrequency(frequencyHz int64) error {
	if frequencyHz < 0 {
		return &IntentError{Code: ErrInvalidIntent, Reason: fmt.Sprintf("negative frequency %d", frequencyHz)}
	}
	return nil
}

// sanitizeSpotText strips frame-breaking characters from free text
// embedded in a spot command.
func sanitizeSpotText(text string) string {
	text = strings.ReplaceAll(text, ",", " ")
	text = strings.ReplaceAll(text, ";", " ")
	return strings.TrimSpace(text)
}
