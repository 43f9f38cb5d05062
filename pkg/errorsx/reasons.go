package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect     ReasonCode = "stt_connect"
	ReasonSTTSend        ReasonCode = "stt_send"
	ReasonSTTRetry       ReasonCode = "stt_retry"
	ReasonSTTRateLimit   ReasonCode = "stt_rate_limit"
	ReasonSTTCircuitOpen ReasonCode = "stt_circuit_open"

	ReasonTTSConnect   ReasonCode = "tts_connect"
	ReasonTTSSend      ReasonCode = "tts_send"
	ReasonTTSRetry     ReasonCode = "tts_retry"
	ReasonTTSRateLimit ReasonCode = "tts_rate_limit"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMSelect    ReasonCode = "llm_select"
	ReasonLLMTimeout   ReasonCode = "llm_timeout"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonMetadataParse  ReasonCode = "metadata_parse"
	ReasonPlaybackDevice ReasonCode = "playback_device"
	ReasonStaleTurn      ReasonCode = "stale_turn"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"
)
