package parry

import (
	"fmt"
	"strings"

	"github.com/parryvoice/parry/pkg/adapters/stt"
	"github.com/parryvoice/parry/pkg/adapters/tts"
	"github.com/parryvoice/parry/pkg/configutil"
	"github.com/parryvoice/parry/pkg/llm"
	"github.com/parryvoice/parry/pkg/providers/deepgram"
	"github.com/parryvoice/parry/pkg/providers/elevenlabs"
	"github.com/parryvoice/parry/pkg/providers/mock"
	"github.com/parryvoice/parry/pkg/providers/openai"
)

type STTFactory func(cfg Config, streamID, traceID string) (stt.StreamingSTT, error)
type TTSFactory func(cfg Config, streamID string) (tts.StreamingTTS, error)
type LLMFactory func(cfg Config) (llm.LLMAdapter, error)

// ProviderRegistry maps vendor names from config to adapter constructors.
type ProviderRegistry struct {
	stt map[string]STTFactory
	tts map[string]TTSFactory
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
		llm: make(map[string]LLMFactory),
	}
}

// DefaultRegistry returns a registry with every built-in vendor wired.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterSTT("deepgram", buildDeepgramSTT)
	r.RegisterTTS("elevenlabs", buildElevenLabsTTS)
	r.RegisterLLM("openai", buildOpenAILLM)
	r.RegisterSTT("mock", func(_ Config, streamID, _ string) (stt.StreamingSTT, error) {
		return mock.NewSTT(streamID), nil
	})
	r.RegisterTTS("mock", func(cfg Config, streamID string) (tts.StreamingTTS, error) {
		return mock.NewTTS(streamID, cfg.Engine.SampleRate), nil
	})
	r.RegisterLLM("mock", func(cfg Config) (llm.LLMAdapter, error) {
		var s struct {
			ResponseText string `mapstructure:"response_text"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
			return nil, err
		}
		return mock.NewLLMAdapter(mock.LLMConfig{ResponseText: s.ResponseText}), nil
	})
	return r
}

func (r *ProviderRegistry) RegisterSTT(name string, f STTFactory) {
	r.stt[normalizeProvider(name)] = f
}

func (r *ProviderRegistry) RegisterTTS(name string, f TTSFactory) {
	r.tts[normalizeProvider(name)] = f
}

func (r *ProviderRegistry) RegisterLLM(name string, f LLMFactory) {
	r.llm[normalizeProvider(name)] = f
}

func (r *ProviderRegistry) BuildSTT(cfg Config, streamID, traceID string) (stt.StreamingSTT, error) {
	f := r.stt[normalizeProvider(cfg.Vendors.STT.Provider)]
	if f == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", cfg.Vendors.STT.Provider)
	}
	return f(cfg, streamID, traceID)
}

func (r *ProviderRegistry) BuildTTS(cfg Config, streamID string) (tts.StreamingTTS, error) {
	f := r.tts[normalizeProvider(cfg.Vendors.TTS.Provider)]
	if f == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", cfg.Vendors.TTS.Provider)
	}
	return f(cfg, streamID)
}

func (r *ProviderRegistry) BuildLLM(cfg Config) (llm.LLMAdapter, error) {
	f := r.llm[normalizeProvider(cfg.Vendors.LLM.Provider)]
	if f == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", cfg.Vendors.LLM.Provider)
	}
	return f(cfg)
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func buildDeepgramSTT(cfg Config, streamID, traceID string) (stt.StreamingSTT, error) {
	if err := configutil.ValidateSettings(cfg.Vendors.STT.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "encoding", "interim", "vad_events", "utterance_end_ms"},
	}); err != nil {
		return nil, fmt.Errorf("vendors.stt.settings: %w", err)
	}
	var s struct {
		APIKey         string `mapstructure:"api_key"`
		Model          string `mapstructure:"model"`
		Language       string `mapstructure:"language"`
		Encoding       string `mapstructure:"encoding"`
		Interim        bool   `mapstructure:"interim"`
		VADEvents      *bool  `mapstructure:"vad_events"`
		UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
	}
	if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &s); err != nil {
		return nil, err
	}
	return deepgram.New(deepgram.Config{
		APIKey:         s.APIKey,
		Model:          s.Model,
		Language:       s.Language,
		SampleRate:     cfg.Engine.SampleRate,
		Encoding:       s.Encoding,
		Interim:        s.Interim,
		VADEvents:      configutil.BoolValue(s.VADEvents, true),
		UtteranceEndMS: s.UtteranceEndMS,
		StreamID:       streamID,
		TraceID:        traceID,
	}), nil
}

func buildElevenLabsTTS(cfg Config, streamID string) (tts.StreamingTTS, error) {
	if err := configutil.ValidateSettings(cfg.Vendors.TTS.Settings, configutil.Schema{
		Required: []string{"api_key", "voice_id"},
		Optional: []string{"model_id", "output_format"},
	}); err != nil {
		return nil, fmt.Errorf("vendors.tts.settings: %w", err)
	}
	var s struct {
		APIKey       string `mapstructure:"api_key"`
		VoiceID      string `mapstructure:"voice_id"`
		ModelID      string `mapstructure:"model_id"`
		OutputFormat string `mapstructure:"output_format"`
	}
	if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &s); err != nil {
		return nil, err
	}
	return elevenlabs.New(elevenlabs.Config{
		APIKey:       s.APIKey,
		VoiceID:      s.VoiceID,
		ModelID:      s.ModelID,
		OutputFormat: s.OutputFormat,
		SampleRate:   cfg.Engine.SampleRate,
		StreamID:     streamID,
	}), nil
}

func buildOpenAILLM(cfg Config) (llm.LLMAdapter, error) {
	if err := configutil.ValidateSettings(cfg.Vendors.LLM.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url"},
	}); err != nil {
		return nil, fmt.Errorf("vendors.llm.settings: %w", err)
	}
	var s struct {
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		BaseURL string `mapstructure:"base_url"`
	}
	if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
		return nil, err
	}
	a := openai.NewAdapter(s.APIKey, s.Model)
	if s.BaseURL != "" {
		a.BaseURL = s.BaseURL
	}
	return a, nil
}
