package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/swl-control/swlc/internal/auth"
	"github.com/swl-control/swlc/internal/command"
	"github.com/swl-control/swlc/internal/config"
	"github.com/swl-control/swlc/internal/profile"
	"github.com/swl-control/swlc/internal/schedule"
	"github.com/swl-control/swlc/internal/spot"
)

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	if s.authMiddleware == nil {
		mux.HandleFunc(apiV1+"/session", s.handleSession)
		mux.HandleFunc(apiV1+"/session/connect", s.handleSessionConnect)
		mux.HandleFunc(apiV1+"/session/disconnect", s.handleSessionDisconnect)
		mux.HandleFunc(apiV1+"/settings", s.handleSettings)
		mux.HandleFunc(apiV1+"/commands/tune", s.handleTune)
		mux.HandleFunc(apiV1+"/commands/mode", s.handleMode)
		mux.HandleFunc(apiV1+"/commands/mute", s.handleMute)
		mux.HandleFunc(apiV1+"/commands/raw", s.handleRaw)
		mux.HandleFunc(apiV1+"/spots", s.handleSpots)
		mux.HandleFunc(apiV1+"/telemetry", s.handleTelemetry)
		return
	}

	read := func(h http.HandlerFunc) http.HandlerFunc {
		return s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(auth.ScopeRead)(h))
	}
	control := func(h http.HandlerFunc) http.HandlerFunc {
		return s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(auth.ScopeControl)(h))
	}

	mux.HandleFunc(apiV1+"/session", read(s.handleSession))
	mux.HandleFunc(apiV1+"/session/connect", control(s.handleSessionConnect))
	mux.HandleFunc(apiV1+"/session/disconnect", control(s.handleSessionDisconnect))
	mux.HandleFunc(apiV1+"/settings", s.handleSettingsWithAuth)
	mux.HandleFunc(apiV1+"/commands/tune", control(s.handleTune))
	mux.HandleFunc(apiV1+"/commands/mode", control(s.handleMode))
	mux.HandleFunc(apiV1+"/commands/mute", control(s.handleMute))
	mux.HandleFunc(apiV1+"/commands/raw", control(s.handleRaw))
	mux.HandleFunc(apiV1+"/spots", s.handleSpotsWithAuth)
	mux.HandleFunc(apiV1+"/telemetry", s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(auth.ScopeTelemetry)(s.handleTelemetry)))
}

// handleSettingsWithAuth splits read and write scopes by method.
func (s *Server) handleSettingsWithAuth(w http.ResponseWriter, r *http.Request) {
	scope := auth.ScopeRead
	if r.Method != http.MethodGet {
		scope = auth.ScopeControl
	}
	s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(scope)(s.handleSettings))(w, r)
}

// handleSpotsWithAuth splits read and write scopes by method.
func (s *Server) handleSpotsWithAuth(w http.ResponseWriter, r *http.Request) {
	scope := auth.ScopeRead
	if r.Method != http.MethodGet {
		scope = auth.ScopeControl
	}
	s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(scope)(s.handleSpots))(w, r)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", nil)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"status":    "ok",
		"uptimeSec": time.Since(s.startTime).Seconds(),
		"session":   s.sessionConn.Status().State.String(),
	})
}

// handleSession handles GET /session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", nil)
		return
	}
	status := s.sessionConn.Status()
	WriteSuccess(w, map[string]interface{}{
		"state":       status.State.String(),
		"host":        status.Host,
		"port":        status.Port,
		"lastCommand": status.LastCommand,
		"lastError":   status.LastError,
		"muted":       s.dispatcher.Muted(),
	})
}

// handleSessionConnect handles POST /session/connect. The endpoint and
// dialect come from settings; the dialect is fixed for the session
// here, before the first frame can go out.
func (s *Server) handleSessionConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", nil)
		return
	}

	settings, err := s.settings.Load()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "Settings unavailable", nil)
		return
	}
	p, err := profile.ParseProfile(settings.Profile)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	formatter, err := profile.NewFormatter(p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.dispatcher.SetFormatter(formatter)

	if err := s.sessionConn.Connect(r.Context(), settings.Host, settings.Port); err != nil {
		writeDomainError(w, err)
		return
	}

	status := s.sessionConn.Status()
	WriteSuccess(w, map[string]interface{}{
		"state":   status.State.String(),
		"host":    status.Host,
		"port":    status.Port,
		"profile": string(p),
	})
}

// handleSessionDisconnect handles POST /session/disconnect.
func (s *Server) handleSessionDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", nil)
		return
	}
	s.sessionConn.Disconnect()
	WriteSuccess(w, map[string]interface{}{"state": s.sessionConn.Status().State.String()})
}

// handleSettings handles GET and POST /settings.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.Load()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "Settings unavailable", nil)
			return
		}
		WriteSuccess(w, settings)
	case http.MethodPost:
		var settings config.Settings
		if !decodeStrict(w, r, &settings) {
			return
		}
		if err := s.settings.Save(settings); err != nil {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		// New endpoint/profile values apply on the next connect.
		WriteSuccess(w, settings)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST methods are allowed", nil)
	}
}

// handleTune handles POST /commands/tune. With a mode in the body the
// pair goes out tune-first.
func (s *Server) handleTune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", nil)
		return
	}
	var req struct {
		FrequencyHz int64  `json:"frequencyHz"`
		Mode        string `json:"mode,omitempty"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}

	var res command.Result
	var err error
	if req.Mode != "" {
		res, err = s.dispatcher.TuneWithMode(r.Context(), req.FrequencyHz, req.Mode)
	} else {
		res, err = s.dispatcher.Tune(r.Context(), req.FrequencyHz)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeResult(w, res)
}

// handleMode handles POST /commands/mode.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", nil)
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}
	res, err := s.dispatcher.SetMode(r.Context(), req.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeResult(w, res)
}

// handleMute handles POST /commands/mute.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", nil)
		return
	}
	var req struct {
		Muted bool `json:"muted"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}
	res, err := s.dispatcher.SetMute(r.Context(), req.Muted)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeResult(w, res)
}

// handleRaw handles POST /commands/raw.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", nil)
		return
	}
	var req struct {
		Command string `json:"command"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}
	res, err := s.dispatcher.Raw(r.Context(), req.Command)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeResult(w, res)
}

// handleSpots handles GET, POST, and DELETE /spots.
func (s *Server) handleSpots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, s.spots.Records())
	case http.MethodPost:
		s.handleSendSpot(w, r)
	case http.MethodDelete:
		s.handleClearSpot(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET, POST and DELETE methods are allowed", nil)
	}
}

func (s *Server) handleSendSpot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Callsign     string          `json:"callsign"`
		FrequencyHz  int64           `json:"frequencyHz"`
		Mode         string          `json:"mode"`
		ScheduledEnd *time.Time      `json:"scheduledEnd,omitempty"`
		Policy       string          `json:"policy,omitempty"`
		TTLSeconds   *int            `json:"ttlSeconds,omitempty"`
		Comment      string          `json:"comment,omitempty"`
		Payload      json.RawMessage `json:"payload,omitempty"`
	}
	if !decodeStrict(w, r, &req) {
		return
	}

	settings, err := s.settings.Load()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "Settings unavailable", nil)
		return
	}

	policy := spot.Policy(settings.DefaultSpotPolicy)
	if req.Policy != "" {
		policy = spot.Policy(req.Policy)
	}
	if policy != spot.PolicyTimed && policy != spot.PolicyPersistent {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "policy must be timed or persistent", nil)
		return
	}
	ttl := time.Duration(settings.SpotTTLSeconds) * time.Second
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}

	station := schedule.Station{
		Callsign:     req.Callsign,
		FrequencyHz:  req.FrequencyHz,
		Mode:         req.Mode,
		ScheduledEnd: req.ScheduledEnd,
	}
	var opts []spot.SendOption
	if req.Comment != "" {
		opts = append(opts, spot.WithComment(req.Comment))
	}
	if len(req.Payload) > 0 {
		opts = append(opts, spot.WithPayload(req.Payload))
	}
	record, err := s.spots.SendSpot(r.Context(), station, policy, ttl, opts...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if record.Outcome == command.OutcomeDegraded {
		WriteDegraded(w, record, "dialect marks spot delivery as unconfirmed")
		return
	}
	WriteSuccess(w, record)
}

func (s *Server) handleClearSpot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Callsign    string `json:"callsign"`
		FrequencyHz int64  `json:"frequencyHz"`
	}
	// Identity comes from query parameters or, failing that, the body.
	q := r.URL.Query()
	if q.Get("callsign") != "" {
		req.Callsign = q.Get("callsign")
		hz, err := strconv.ParseInt(q.Get("frequencyHz"), 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "frequencyHz query parameter must be an integer", nil)
			return
		}
		req.FrequencyHz = hz
	} else if !decodeStrict(w, r, &req) {
		return
	}
	station := schedule.Station{Callsign: req.Callsign, FrequencyHz: req.FrequencyHz}
	if err := s.spots.ClearSpot(r.Context(), station); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"cleared": station.Key()})
}

// handleTelemetry handles GET /telemetry (SSE).
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", nil)
		return
	}
	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to subscribe to telemetry stream", nil)
	}
}

// decodeStrict parses a JSON body, rejecting unknown fields and
// trailing data. It writes the error response itself.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return false
	}
	return true
}

// writeResult maps a dispatch result onto the envelope, surfacing
// degraded success distinctly.
func writeResult(w http.ResponseWriter, res command.Result) {
	if res.Outcome == command.OutcomeDegraded {
		WriteDegraded(w, res, res.Quirk)
		return
	}
	WriteSuccess(w, res)
}
