package frames

// Meta keys shared across the pipeline. Values are always strings so frames
// stay cheap to clone.
const (
	MetaStreamID     = "stream_id"
	MetaCallSID      = "call_sid"
	MetaTraceID      = "trace_id"
	MetaIsFinal      = "is_final"
	MetaSpeaker      = "speaker"
	MetaSource       = "source"
	MetaReason       = "reason"
	MetaEmotion      = "emotion"
	MetaTTSFlush     = "tts_flush"
	MetaUtteranceSeq = "utterance_seq"
	MetaFromNumber   = "from_number"
	MetaPhase        = "phase"
	MetaGreetingText = "greeting_text"
	MetaEncoding     = "encoding"
	MetaEndReason    = "call_end_reason"
)

// Speaker roles carried in MetaSpeaker.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// System frame names emitted by transports and providers.
const (
	SystemCallStart       = "call_start"
	SystemUserSpeechStart = "user_speech_start"
	SystemAgentSpeechEnd  = "agent_speech_end"
	SystemCallEnd         = "call_end"
	SystemHeartbeat       = "heartbeat"
)
