package parry

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/parryvoice/parry/pkg/pipeline"
)

type Config struct {
	Pipeline      pipeline.Config       `mapstructure:"pipeline"`
	Engine        pipeline.EngineConfig `mapstructure:"engine"`
	Vendors       VendorsConfig         `mapstructure:"vendors"`
	Transports    TransportsConfig      `mapstructure:"transports"`
	Persona       PersonaConfig         `mapstructure:"persona"`
	Audio         AudioConfig           `mapstructure:"audio"`
	Response      ResponseConfig        `mapstructure:"response"`
	Observability ObservabilityConfig   `mapstructure:"observability"`
	Privacy       PrivacyConfig         `mapstructure:"privacy"`
	Environment   string                `mapstructure:"environment"`
	LogLevel      string                `mapstructure:"log_level"`
	LogFormat     string                `mapstructure:"log_format"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// PersonaConfig describes who the trainee is talking to.
type PersonaConfig struct {
	Name     string `mapstructure:"name"`
	Role     string `mapstructure:"role"`
	Company  string `mapstructure:"company"`
	Scenario string `mapstructure:"scenario"`
}

type AudioConfig struct {
	BatchMinMS   int `mapstructure:"batch_min_ms"`
	IdleFlushMS  int `mapstructure:"idle_flush_ms"`
	EchoWindowMS int `mapstructure:"echo_window_ms"`
	EchoMaxWords int `mapstructure:"echo_max_words"`
}

type ResponseConfig struct {
	PitchTimeoutMS    int `mapstructure:"pitch_timeout_ms"`
	SelectTimeoutMS   int `mapstructure:"select_timeout_ms"`
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int `mapstructure:"breaker_cooldown_ms"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Pipeline struct {
			Async         bool   `mapstructure:"async"`
			StageBuffer   int    `mapstructure:"stagebuffer"`
			HighCapacity  int    `mapstructure:"highcapacity"`
			LowCapacity   int    `mapstructure:"lowcapacity"`
			FairnessRatio int    `mapstructure:"fairnessratio"`
			Backpressure  string `mapstructure:"backpressure"`
		} `mapstructure:"pipeline"`
		Engine        pipeline.EngineConfig `mapstructure:"engine"`
		Vendors       VendorsConfig         `mapstructure:"vendors"`
		Transports    TransportsConfig      `mapstructure:"transports"`
		Persona       PersonaConfig         `mapstructure:"persona"`
		Audio         AudioConfig           `mapstructure:"audio"`
		Response      ResponseConfig        `mapstructure:"response"`
		Observability ObservabilityConfig   `mapstructure:"observability"`
		Privacy       PrivacyConfig         `mapstructure:"privacy"`
		Environment   string                `mapstructure:"environment"`
		LogLevel      string                `mapstructure:"log_level"`
		LogFormat     string                `mapstructure:"log_format"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := Config{
		Pipeline: pipeline.Config{
			Async:         raw.Pipeline.Async,
			StageBuffer:   raw.Pipeline.StageBuffer,
			HighCapacity:  raw.Pipeline.HighCapacity,
			LowCapacity:   raw.Pipeline.LowCapacity,
			FairnessRatio: raw.Pipeline.FairnessRatio,
			Backpressure:  parseBackpressure(raw.Pipeline.Backpressure),
		},
		Engine:        raw.Engine,
		Vendors:       raw.Vendors,
		Transports:    raw.Transports,
		Persona:       raw.Persona,
		Audio:         raw.Audio,
		Response:      raw.Response,
		Observability: raw.Observability,
		Privacy:       raw.Privacy,
		Environment:   raw.Environment,
		LogLevel:      raw.LogLevel,
		LogFormat:     raw.LogFormat,
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.async", true)
	v.SetDefault("pipeline.stagebuffer", 128)
	v.SetDefault("pipeline.highcapacity", 256)
	v.SetDefault("pipeline.lowcapacity", 512)
	v.SetDefault("pipeline.fairnessratio", 3)
	v.SetDefault("pipeline.backpressure", "drop")
	v.SetDefault("engine.samplerate", 16000)
	v.SetDefault("engine.mic_frame_ms", 30)
	v.SetDefault("engine.playback_lead_ms", 30)
	v.SetDefault("audio.batch_min_ms", 20)
	v.SetDefault("audio.idle_flush_ms", 40)
	v.SetDefault("audio.echo_window_ms", 1000)
	v.SetDefault("audio.echo_max_words", 3)
	v.SetDefault("response.pitch_timeout_ms", 6000)
	v.SetDefault("response.select_timeout_ms", 3000)
	v.SetDefault("response.breaker_threshold", 5)
	v.SetDefault("response.breaker_cooldown_ms", 10000)
	v.SetDefault("persona.name", "Jordan Avery")
	v.SetDefault("persona.role", "Head of Operations")
	v.SetDefault("persona.company", "Meridian Logistics")
	v.SetDefault("persona.scenario", "cold call from a software vendor")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(val.String())))
			}
		}
	}
}

func parseBackpressure(v string) pipeline.BackpressureMode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "wait":
		return pipeline.BackpressureWait
	case "drop", "":
		return pipeline.BackpressureDrop
	default:
		if n, err := strconv.Atoi(v); err == nil {
			return pipeline.BackpressureMode(n)
		}
	}
	return pipeline.BackpressureDrop
}
