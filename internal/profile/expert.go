package profile

import (
	"fmt"
	"strings"
)

// expertSpotColor is the ARGB color constant placed in the fourth
// position of an ExpertSDR SPOT command.
const expertSpotColor = 16711680

// expertSpotQuirk marks every Expert spot-path command. The exact spot
// grammar for the ExpertSDR/SunSDR family has not been confirmed by
// the vendor; the format below follows the best available observation
// and must be treated as experimental.
const expertSpotQuirk = "ExpertSDR spot grammar unconfirmed; frame sent but peer rendering is not guaranteed"

// expertModeQuirk marks Expert mode-forcing, which has not been
// confirmed to apply reliably.
const expertModeQuirk = "ExpertSDR mode-forcing not confirmed to apply reliably"

// ExpertFormatter emits the ExpertSDR/SunSDR dialect. Tune is shared
// TCI grammar; the spot and mode paths are kept isolated and flagged so
// a corrected format can be substituted without touching anything else.
type ExpertFormatter struct{}

var _ Formatter = (*ExpertFormatter)(nil)

// Profile implements Formatter.
func (f *ExpertFormatter) Profile() Profile { return ProfileExpert }

// Tune implements Formatter.
func (f *ExpertFormatter) Tune(frequencyHz int64) (Command, error) {
	if err := validateFrequency(frequencyHz); err != nil {
		return Command{}, err
	}
	return Command{Text: fmt.Sprintf("vfo:0,0,%d;", frequencyHz)}, nil
}

// SetMode implements Formatter.
func (f *ExpertFormatter) SetMode(mode string) (Command, error) {
	m, err := normalizeSetMode(mode)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Text:  fmt.Sprintf("modulation:0,%s;", m),
		Quirk: expertModeQuirk,
	}, nil
}

// Mute implements Formatter.
func (f *ExpertFormatter) Mute(muted bool) (Command, error) {
	return Command{Text: fmt.Sprintf("mute:%t;", muted)}, nil
}

// Spot implements Formatter.
func (f *ExpertFormatter) Spot(intent SpotIntent) (Command, error) {
	if err := validateFrequency(intent.FrequencyHz); err != nil {
		return Command{}, err
	}
	if intent.TTLSeconds < 0 {
		return Command{}, &IntentError{Code: ErrInvalidIntent, Reason: fmt.Sprintf("negative ttl %d", intent.TTLSeconds)}
	}

	tag := sanitizeCallsign(intent.Callsign)
	mode := normalizeSpotMode(intent.Mode)
	text := sanitizeSpotText(intent.Comment)
	if text == "" {
		text = "SWL_View"
	}

	cmd := fmt.Sprintf("SPOT:%s,%s,%d,%d,%s;",
		tag, strings.ToUpper(mode), intent.FrequencyHz, expertSpotColor, text)
	return Command{Text: cmd, Quirk: expertSpotQuirk}, nil
}

// ClearSpot implements Formatter.
func (f *ExpertFormatter) ClearSpot(callsign string) (Command, error) {
	return Command{
		Text:  fmt.Sprintf("spot_delete:%s;", sanitizeCallsign(callsign)),
		Quirk: expertSpotQuirk,
	}, nil
}
