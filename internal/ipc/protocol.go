package ipc

// Commands understood by the canto daemon.
const (
	CommandStatus     = "status"
	CommandStart      = "start"
	CommandStop       = "stop"
	CommandCancel     = "cancel"
	CommandReset      = "reset"
	CommandToggle     = "toggle"
	CommandEvents     = "events"
	CommandInit       = "init_context"
	CommandTranscribe = "transcribe"
	CommandFree       = "free_context"
	CommandVersion    = "version"
)

// Stable error codes carried in Response.Code.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeAlreadyListening = "ALREADY_LISTENING"
	CodeResetRequired    = "RESET_REQUIRED"
	CodeStartError       = "START_ERROR"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodeUnavailable      = "UNAVAILABLE"
)

type Request struct {
	Command   string   `json:"command"`
	Locales   []string `json:"locales,omitempty"`
	ModelPath string   `json:"model_path,omitempty"`
	AudioPath string   `json:"audio_path,omitempty"`
	Context   uint64   `json:"context,omitempty"`
}

type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Text      string `json:"text,omitempty"`
	Context   uint64 `json:"context,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}
