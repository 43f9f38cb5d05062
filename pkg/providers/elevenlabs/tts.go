// Package elevenlabs streams persona text to the ElevenLabs realtime input
// API and returns synthesized audio frames for the playback scheduler.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parryvoice/parry/pkg/adapters/tts"
	"github.com/parryvoice/parry/pkg/errorsx"
	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/resilience"
)

const (
	inputEndpoint = "wss://api.elevenlabs.io/v1/text-to-speech"
	// The service drops connections idle for ~20s; ping under that.
	keepAliveEvery = 15 * time.Second
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SampleRate   int
	StreamID     string
	CallSID      string
}

// ElevenLabsTTS is the streaming synthesis adapter. One websocket per
// session; text goes out through a buffered write loop so SendText never
// blocks the turn engine.
type ElevenLabsTTS struct {
	cfg    Config
	conn   *websocket.Conn
	out    chan frames.Frame
	texts  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wmu    sync.Mutex
}

func New(cfg Config) *ElevenLabsTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	return &ElevenLabsTTS{
		cfg:   cfg,
		out:   make(chan frames.Frame, 256),
		texts: make(chan string, 256),
	}
}

func (s *ElevenLabsTTS) Name() string { return "elevenlabs_tts" }

func (s *ElevenLabsTTS) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errors.New("missing elevenlabs config")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	endpoint := s.streamInputURL()
	slog.Debug("tts_connecting",
		"stream_id", s.cfg.StreamID,
		"output_format", s.cfg.OutputFormat,
	)

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(endpoint, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	s.conn = conn
	slog.Info("tts_connected",
		"stream_id", s.cfg.StreamID,
		"output_format", s.cfg.OutputFormat,
	)

	// Session bootstrap: voice settings plus a chunk schedule tuned for
	// low first-byte latency over even chunk sizes.
	_ = s.write(map[string]any{
		"text":                   " ",
		"try_trigger_generation": true,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	})

	go s.pumpText()
	go s.pumpAudio()
	return nil
}

func (s *ElevenLabsTTS) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *ElevenLabsTTS) SendText(text string) error {
	if s.conn == nil {
		return errors.New("not connected")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	// Trailing space marks a word boundary for the incremental tokenizer.
	select {
	case s.texts <- text + " ":
	default:
	}
	return nil
}

// Flush aborts generation server-side and purges locally buffered audio so
// nothing stale plays after a barge-in.
func (s *ElevenLabsTTS) Flush() {
	_ = s.write(map[string]any{"text": " ", "flush": true})
	for {
		select {
		case <-s.out:
		default:
			slog.Debug("tts_buffer_purged", "stream_id", s.cfg.StreamID)
			return
		}
	}
}

func (s *ElevenLabsTTS) Results() <-chan frames.Frame { return s.out }

func (s *ElevenLabsTTS) streamInputURL() string {
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "4")
	return inputEndpoint + "/" + s.cfg.VoiceID + "/stream-input?" + q.Encode()
}

func (s *ElevenLabsTTS) pumpText() {
	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.texts:
			_ = s.write(map[string]any{"text": text})
		case <-keepAlive.C:
			_ = s.write(map[string]any{"text": " "})
		}
	}
}

func (s *ElevenLabsTTS) pumpAudio() {
	for s.ctx.Err() == nil {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				slog.Error("tts_read_failed",
					"stream_id", s.cfg.StreamID,
					"error", err.Error(),
				)
			}
			return
		}
		if raw, ok := decodeAudioPayload(data); ok {
			s.emit(raw)
		}
	}
}

// decodeAudioPayload pulls the base64 audio out of a server event. The
// field name has varied across API revisions, so all spellings are tried.
func decodeAudioPayload(data []byte) ([]byte, bool) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("tts_unparseable_event", "data", string(data))
		return nil, false
	}
	var encoded string
	for _, key := range []string{"audio", "audio_base_64", "audio_base64"} {
		if a, ok := msg[key].(string); ok && a != "" {
			encoded = a
			break
		}
	}
	if encoded == "" {
		if _, isAlign := msg["alignment"]; !isAlign {
			slog.Debug("tts_event_without_audio", "payload", msg)
		}
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		slog.Error("tts_audio_decode_failed", "error", err)
		return nil, false
	}
	return raw, true
}

func (s *ElevenLabsTTS) emit(raw []byte) {
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaCallSID:  s.cfg.CallSID,
		frames.MetaSource:   "elevenlabs",
		frames.MetaSpeaker:  frames.SpeakerAgent,
	}
	f := frames.NewAudioFrame(s.cfg.StreamID, time.Now().UnixNano(), raw, s.cfg.SampleRate, 1, meta)
	select {
	case s.out <- f:
	default:
		slog.Warn("tts_output_full", "stream_id", s.cfg.StreamID)
	}
}

func (s *ElevenLabsTTS) write(payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.StreamingTTS = (*ElevenLabsTTS)(nil)
