// Package twilio carries a training call over Twilio Media Streams: caller
// audio arrives as base64 mulaw over a websocket, persona audio goes back
// the same way.
package twilio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/parryvoice/parry/pkg/errorsx"
	"github.com/parryvoice/parry/pkg/frames"
)

type Config struct {
	ServerAddr         string   `mapstructure:"server_addr"`
	PublicURL          string   `mapstructure:"public_url"`
	AuthToken          string   `mapstructure:"auth_token"`
	AccountSID         string   `mapstructure:"account_sid"`
	VoicePath          string   `mapstructure:"voice_path"`
	WebsocketPath      string   `mapstructure:"ws_path"`
	StatusCallbackPath string   `mapstructure:"status_callback_path"`
	AllowAnyOrigin     bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.StatusCallbackPath == "" {
		c.StatusCallbackPath = "/status"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// identity is what the transport remembers about a live stream beyond its
// websocket: enough to stamp frame metadata without touching the socket.
type identity struct {
	traceID string
	from    string
}

// Transport terminates Twilio Media Stream websockets and bridges them to
// the frame pipeline. One transport serves many concurrent calls, keyed by
// stream SID.
type Transport struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame

	mu          sync.Mutex
	sessions    map[string]*session
	callSIDs    map[string]string   // stream SID -> call SID
	callStreams map[string]string   // call SID -> stream SID
	identities  map[string]identity // stream SID -> trace/caller info

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	t := &Transport{
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh:      make(chan frames.Frame, 512),
		sessions:    make(map[string]*session),
		callSIDs:    make(map[string]string),
		callStreams: make(map[string]string),
		identities:  make(map[string]identity),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "twilio" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url":         t.httpURL(t.cfg.VoicePath),
		"status_callback_url": t.httpURL(t.cfg.StatusCallbackPath),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc(t.cfg.StatusCallbackPath, t.handleStatusCallback)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("twilio_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	live := t.sessions
	t.sessions = make(map[string]*session)
	t.mu.Unlock()
	for _, sess := range live {
		_ = sess.close()
	}
	close(t.recvCh)
	return nil
}

// ServeHTTP upgrades the Media Streams websocket and runs its read loop.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	t.readLoop(conn)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	var streamID string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Socket died without a stop event: tell the engine the call
			// is gone so it can wind the session down.
			if streamID != "" {
				t.emitCallEnd(streamID, "connection_lost")
				t.detach(streamID)
			}
			return
		}
		var evt streamEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "start":
			if evt.Start != nil {
				streamID = evt.Start.StreamID
				t.handleStart(streamID, evt.Start, conn)
			}
		case "media":
			if evt.Media != nil && streamID != "" {
				t.handleMedia(streamID, evt.Media)
			}
		case "stop":
			t.emitCallEnd(streamID, "completed")
			t.detach(streamID)
			return
		}
	}
}

func (t *Transport) handleStart(streamID string, start *streamStart, conn *websocket.Conn) {
	old := t.attach(streamID, start.CallSID, uuid.NewString(), start.From, conn)
	if old != nil {
		_ = old.close()
	}
	t.emit(frames.NewSystemFrame(streamID, time.Now().UnixNano(),
		frames.SystemCallStart, t.metaForStream(streamID)))
}

func (t *Transport) handleMedia(streamID string, media *streamMedia) {
	payload, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		return
	}
	meta := t.metaForStream(streamID)
	meta[frames.MetaEncoding] = "mulaw"
	meta[frames.MetaSpeaker] = frames.SpeakerUser
	// Pooled: media arrives 50 frames per second per call, and the pipeline
	// releases the buffer once the frame is consumed or shed.
	t.emit(frames.NewAudioFrameFromPool(streamID, time.Now().UnixNano(), payload, 8000, 1, meta))
}

func (t *Transport) emitCallEnd(streamID, reason string) {
	meta := t.metaForStream(streamID)
	meta[frames.MetaEndReason] = reason
	t.emit(frames.NewSystemFrame(streamID, time.Now().UnixNano(), frames.SystemCallEnd, meta))
}

// emit never blocks; the engine drains recvCh, and if it cannot keep up
// dropping at the edge is the intended behavior.
func (t *Transport) emit(f frames.Frame) {
	select {
	case t.recvCh <- f:
	default:
	}
}

func (t *Transport) Send(f frames.Frame) error {
	switch v := f.(type) {
	case frames.ControlFrame:
		return t.sendControl(v)
	case frames.AudioFrame:
		return t.sendAudio(v)
	}
	return nil
}

func (t *Transport) sendControl(cf frames.ControlFrame) error {
	switch cf.Code() {
	case frames.ControlFlush, frames.ControlCancel, frames.ControlStartInterruption:
	default:
		return nil
	}
	streamID := cf.Meta()[frames.MetaStreamID]
	sess := t.session(streamID)
	if sess == nil {
		return nil
	}
	// "clear" makes Twilio discard any audio it has buffered but not yet
	// played, which is what makes barge-in feel instant.
	return sess.enqueue(map[string]any{
		"event":     "clear",
		"streamSid": streamID,
	})
}

func (t *Transport) sendAudio(af frames.AudioFrame) error {
	streamID := af.Meta()[frames.MetaStreamID]
	sess := t.session(streamID)
	if sess == nil {
		return nil
	}
	return sess.enqueue(map[string]any{
		"event":     "media",
		"streamSid": streamID,
		"media": map[string]any{
			"payload": base64.StdEncoding.EncodeToString(af.RawPayload()),
		},
	})
}

// Dial rings the trainee so the roleplay starts from the persona's side.
func (t *Transport) Dial(ctx context.Context, to, from, url string) (string, error) {
	if url == "" {
		url = t.httpURL(t.cfg.VoicePath)
	}
	return NewDialer(t.cfg).Dial(ctx, to, from, url)
}

func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateRequest(r) {
		slog.Warn("twilio_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	twiml := `<Response><Connect><Stream url="` + t.websocketURL(r) + `"/></Connect></Response>`
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(twiml))
}

func (t *Transport) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateRequest(r) {
		slog.Warn("twilio_status_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	// Status callbacks are advisory; always 200 so Twilio stops retrying.
	defer w.WriteHeader(http.StatusOK)

	if err := r.ParseForm(); err != nil {
		return
	}
	callSID := r.FormValue("CallSid")
	reason := normalizeEndReason(r.FormValue("CallStatus"))
	if callSID == "" || reason == "" {
		return
	}
	streamID := t.streamForCall(callSID)
	if streamID == "" {
		return
	}
	t.emitCallEnd(streamID, reason)
	t.detach(streamID)
}

func (t *Transport) websocketURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return "wss://" + stripScheme(t.cfg.PublicURL) + t.cfg.WebsocketPath
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return "wss://" + host + t.cfg.WebsocketPath
}

func (t *Transport) httpURL(path string) string {
	if t.cfg.PublicURL != "" {
		return "https://" + stripScheme(t.cfg.PublicURL) + path
	}
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}

// attach registers a new stream. If the call already had a stream (Twilio
// reconnected mid-call), the stale session is returned for the caller to
// close.
func (t *Transport) attach(streamID, callSID, traceID, from string, conn *websocket.Conn) *session {
	sess := newSession(conn)

	t.mu.Lock()
	defer t.mu.Unlock()

	var stale *session
	if callSID != "" {
		if prev := t.callStreams[callSID]; prev != "" && prev != streamID {
			stale = t.sessions[prev]
			t.forgetLocked(prev)
		}
		t.callStreams[callSID] = streamID
	}
	t.sessions[streamID] = sess
	t.callSIDs[streamID] = callSID
	t.identities[streamID] = identity{traceID: traceID, from: from}
	return stale
}

func (t *Transport) detach(streamID string) {
	t.mu.Lock()
	sess := t.sessions[streamID]
	if callSID := t.callSIDs[streamID]; callSID != "" && t.callStreams[callSID] == streamID {
		delete(t.callStreams, callSID)
	}
	t.forgetLocked(streamID)
	t.mu.Unlock()
	if sess != nil {
		_ = sess.close()
	}
}

func (t *Transport) forgetLocked(streamID string) {
	delete(t.sessions, streamID)
	delete(t.callSIDs, streamID)
	delete(t.identities, streamID)
}

func (t *Transport) session(streamID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[streamID]
}

func (t *Transport) streamForCall(callSID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callStreams[callSID]
}

func (t *Transport) metaForStream(streamID string) map[string]string {
	t.mu.Lock()
	callSID := t.callSIDs[streamID]
	id := t.identities[streamID]
	t.mu.Unlock()

	meta := map[string]string{
		frames.MetaStreamID: streamID,
		frames.MetaSource:   "transport",
	}
	if callSID != "" {
		meta[frames.MetaCallSID] = callSID
	}
	if id.traceID != "" {
		meta[frames.MetaTraceID] = id.traceID
	}
	if id.from != "" {
		meta[frames.MetaFromNumber] = id.from
	}
	return meta
}

func (t *Transport) validateRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || t.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

// requestURL reconstructs the URL Twilio signed. Behind a proxy the public
// URL is authoritative; otherwise fall back to forwarded headers.
func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return strings.TrimRight(t.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = r.Header.Get("X-Forwarded-Proto")
	}
	if scheme == "" {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	for _, allowed := range t.cfg.AllowedOrigins {
		if originMatches(origin, strings.TrimRight(strings.TrimSpace(allowed), "/")) {
			return true
		}
	}
	return false
}

// originMatches compares an Origin header against one allowlist entry.
// Entries with a scheme must match exactly; bare hosts match either scheme.
func originMatches(origin, allowed string) bool {
	if allowed == "" {
		return false
	}
	if strings.Contains(allowed, "://") {
		return strings.EqualFold(allowed, origin)
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(allowed, host)
}

// normalizeEndReason maps Twilio call statuses onto the engine's end
// reasons. In-flight statuses map to empty, meaning "not an end".
func normalizeEndReason(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "queued", "ringing", "in-progress", "inprogress":
		return ""
	case "completed", "hangup":
		return "completed"
	case "busy":
		return "busy"
	case "no-answer", "no_answer", "noanswer":
		return "no_answer"
	default:
		return "failed"
	}
}

// session owns the write side of one Media Streams websocket. Writes go
// through a buffered channel so Send never blocks on a slow socket.
type session struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

func newSession(conn *websocket.Conn) *session {
	s := &session{conn: conn, sendCh: make(chan []byte, 256)}
	go s.writePump()
	return s
}

func (s *session) enqueue(msg map[string]any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.sendCh <- b:
	default:
	}
	return nil
}

func (s *session) writePump() {
	for msg := range s.sendCh {
		_ = s.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (s *session) close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.sendCh)
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Wire shapes for the Media Streams websocket messages this transport
// consumes.
type streamEvent struct {
	Event string       `json:"event"`
	Start *streamStart `json:"start,omitempty"`
	Media *streamMedia `json:"media,omitempty"`
}

type streamStart struct {
	CallSID  string `json:"callSid"`
	StreamID string `json:"streamSid"`
	From     string `json:"from"`
}

type streamMedia struct {
	Payload string `json:"payload"`
}

func stripScheme(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}
