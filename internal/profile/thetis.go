package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// thetisSpotChannel is the fixed channel/index constant Thetis expects
// in the fourth position of a SPOT command.
const thetisSpotChannel = 20381

// thetisModeQuirk documents the observed side effect of fully-qualified
// mode-set commands on some Thetis builds. The formatter emits the
// narrowest channel-scoped variant to reduce the blast radius, but the
// mitigation is not a confirmed fix.
const thetisModeQuirk = "mode-set on Thetis can toggle an unrelated audio-routing flag; narrowest variant sent as mitigation"

// ThetisFormatter emits the Thetis dialect. Its spot grammar carries an
// embedded JSON payload with SWL time-to-live tags.
type ThetisFormatter struct{}

var _ Formatter = (*ThetisFormatter)(nil)

// Profile implements Formatter.
func (f *ThetisFormatter) Profile() Profile { return ProfileThetis }

// Tune implements Formatter.
func (f *ThetisFormatter) Tune(frequencyHz int64) (Command, error) {
	if err := validateFrequency(frequencyHz); err != nil {
		return Command{}, err
	}
	return Command{Text: fmt.Sprintf("vfo:0,0,%d;", frequencyHz)}, nil
}

// SetMode implements Formatter.
func (f *ThetisFormatter) SetMode(mode string) (Command, error) {
	m, err := normalizeSetMode(mode)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Text:  fmt.Sprintf("modulation:0,0,%s;", m),
		Quirk: thetisModeQuirk,
	}, nil
}

// Mute implements Formatter.
func (f *ThetisFormatter) Mute(muted bool) (Command, error) {
	value := 0
	if muted {
		value = 1
	}
	return Command{Text: fmt.Sprintf("mute:0,%d;", value)}, nil
}

// swlPayload is the structured payload Thetis reads from a SPOT
// command. Field order is fixed so output is byte-stable.
type swlPayload struct {
	Spotter          string `json:"spotter"`
	Comment          string `json:"comment"`
	Heading          int    `json:"heading"`
	Continent        string `json:"continent"`
	Country          string `json:"country"`
	UTCTime          string `json:"utctime"`
	TextColor        string `json:"TextColor"`
	IsSWL            bool   `json:"IsSWL"`
	SWLSecondsToLive int    `json:"SWLSecondsToLive"`
}

// Spot implements Formatter.
func (f *ThetisFormatter) Spot(intent SpotIntent) (Command, error) {
	if err := validateFrequency(intent.FrequencyHz); err != nil {
		return Command{}, err
	}
	if intent.TTLSeconds < 0 {
		return Command{}, &IntentError{Code: ErrInvalidIntent, Reason: fmt.Sprintf("negative ttl %d", intent.TTLSeconds)}
	}

	tag := sanitizeCallsign(intent.Callsign)
	mode := normalizeSpotMode(intent.Mode)

	payload := intent.Payload
	if len(payload) == 0 {
		comment := intent.Comment
		if comment == "" {
			comment = "SWL schedule " + mode
		}
		ttl := 0
		if intent.Timed {
			ttl = intent.TTLSeconds
			if ttl < 1 {
				ttl = 1
			}
		}
		built, err := json.Marshal(swlPayload{
			Spotter:          "SWL_View",
			Comment:          sanitizeSpotText(comment),
			UTCTime:          intent.UTCTime.UTC().Format(time.RFC3339),
			TextColor:        "#FF00FF00",
			IsSWL:            intent.Timed,
			SWLSecondsToLive: ttl,
		})
		if err != nil {
			return Command{}, &IntentError{Code: ErrInvalidIntent, Reason: err.Error()}
		}
		payload = built
	}

	text := fmt.Sprintf("SPOT:%s,%s,%d,%d,[json]%s;",
		tag, strings.ToUpper(mode), intent.FrequencyHz, thetisSpotChannel, payload)
	return Command{Text: text}, nil
}

// ClearSpot implements Formatter.
func (f *ThetisFormatter) ClearSpot(callsign string) (Command, error) {
	return Command{Text: fmt.Sprintf("spot_delete:%s;", sanitizeCallsign(callsign))}, nil
}
