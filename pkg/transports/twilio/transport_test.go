package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parryvoice/parry/pkg/frames"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestSendInterruptionClearsBuffer(t *testing.T) {
	tr := New(Config{})
	sess := &session{sendCh: make(chan []byte, 1)}
	tr.mu.Lock()
	tr.sessions["stream-1"] = sess
	tr.mu.Unlock()

	cf := frames.NewControlFrame("stream-1", time.Now().UnixNano(), frames.ControlStartInterruption, nil)
	if err := tr.Send(cf); err != nil {
		t.Fatalf("send error: %v", err)
	}

	select {
	case msg := <-sess.sendCh:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt, _ := payload["event"].(string); evt != "clear" {
			t.Fatalf("expected clear event, got %q", evt)
		}
	default:
		t.Fatalf("expected clear event to be enqueued")
	}
}

func TestSendAudioEncodesMedia(t *testing.T) {
	tr := New(Config{})
	sess := &session{sendCh: make(chan []byte, 1)}
	tr.mu.Lock()
	tr.sessions["stream-1"] = sess
	tr.mu.Unlock()

	raw := []byte{0x7F, 0x00, 0xFF}
	af := frames.NewAudioFrame("stream-1", time.Now().UnixNano(), raw, 8000, 1, nil)
	if err := tr.Send(af); err != nil {
		t.Fatalf("send error: %v", err)
	}

	msg := <-sess.sendCh
	var payload struct {
		Event string `json:"event"`
		Media struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(msg, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Event != "media" {
		t.Fatalf("event = %q, want media", payload.Event)
	}
	decoded, err := base64.StdEncoding.DecodeString(payload.Media.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("payload roundtrip mismatch")
	}
}

func TestHandleVoiceSignatureValidation(t *testing.T) {
	cfg := Config{AuthToken: "token", PublicURL: "https://example.com", VoicePath: "/voice"}
	tr := New(cfg)

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+123")
	body := form.Encode()

	req := httptest.NewRequest(http.MethodPost, "https://example.com/voice", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	params := map[string]string{"CallSid": "CA123", "From": "+123"}
	req.Header.Set("X-Twilio-Signature", computeSignature(cfg.AuthToken, tr.requestURL(req), params))

	w := httptest.NewRecorder()
	tr.handleVoice(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `<Stream url="wss://example.com/ws"`) {
		t.Fatalf("twiml missing stream url: %s", w.Body.String())
	}

	reqInvalid := httptest.NewRequest(http.MethodPost, "https://example.com/voice", strings.NewReader(body))
	reqInvalid.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	reqInvalid.Header.Set("X-Twilio-Signature", "invalid")
	wInvalid := httptest.NewRecorder()
	tr.handleVoice(wInvalid, reqInvalid)
	if wInvalid.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", wInvalid.Code)
	}
}

func TestHandleStatusCallbackEmitsCallEnd(t *testing.T) {
	cfg := Config{AuthToken: "token", PublicURL: "https://example.com", StatusCallbackPath: "/status"}
	tr := New(cfg)
	streamID := "stream-1"
	callSID := "CA123"

	tr.mu.Lock()
	tr.callStreams[callSID] = streamID
	tr.callSIDs[streamID] = callSID
	tr.mu.Unlock()

	form := url.Values{}
	form.Set("CallSid", callSID)
	form.Set("CallStatus", "completed")
	body := form.Encode()

	req := httptest.NewRequest(http.MethodPost, "https://example.com/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	params := map[string]string{"CallSid": callSID, "CallStatus": "completed"}
	req.Header.Set("X-Twilio-Signature", computeSignature(cfg.AuthToken, tr.requestURL(req), params))

	w := httptest.NewRecorder()
	tr.handleStatusCallback(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	select {
	case frame := <-tr.Recv():
		sys, ok := frame.(frames.SystemFrame)
		if !ok {
			t.Fatalf("expected SystemFrame, got %T", frame)
		}
		if sys.Name() != frames.SystemCallEnd {
			t.Fatalf("expected call_end, got %q", sys.Name())
		}
		meta := sys.Meta()
		if meta[frames.MetaEndReason] != "completed" {
			t.Fatalf("end reason = %q", meta[frames.MetaEndReason])
		}
		if meta[frames.MetaCallSID] != callSID {
			t.Fatalf("call sid = %q", meta[frames.MetaCallSID])
		}
	case <-time.After(time.Second):
		t.Fatalf("expected call_end frame")
	}
}

func TestNormalizeEndReason(t *testing.T) {
	cases := map[string]string{
		"completed":   "completed",
		"in-progress": "",
		"ringing":     "",
		"busy":        "busy",
		"no-answer":   "no_answer",
		"failed":      "failed",
		"canceled":    "failed",
		"":            "",
	}
	for in, want := range cases {
		if got := normalizeEndReason(in); got != want {
			t.Errorf("normalizeEndReason(%q) = %q, want %q", in, got, want)
		}
	}
}

type stubCreator struct {
	last *api.CreateCallParams
	sid  string
	err  error
}

func (s *stubCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	s.last = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &s.sid}, nil
}

func TestDialerDialUsesWebhookDefault(t *testing.T) {
	stub := &stubCreator{sid: "CA123"}
	d := NewDialer(Config{
		AccountSID: "AC1",
		AuthToken:  "token",
		PublicURL:  "https://example.com",
	})
	d.client = stub

	sid, err := d.Dial(context.Background(), "+100", "+200", "")
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if sid != "CA123" {
		t.Fatalf("sid = %s", sid)
	}
	if stub.last == nil || stub.last.To == nil || *stub.last.To != "+100" {
		t.Fatalf("expected To param")
	}
	if stub.last.Url == nil || *stub.last.Url != "https://example.com/voice" {
		t.Fatalf("url = %v", stub.last.Url)
	}
}

func TestDialerDialRequiresCredentials(t *testing.T) {
	d := NewDialer(Config{})
	if _, err := d.Dial(context.Background(), "+100", "+200", ""); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func computeSignature(authToken, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	base := url
	for _, k := range keys {
		base += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
