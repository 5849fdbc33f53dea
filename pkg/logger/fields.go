package logger

// Standard field names for consistent logging.
const (
	FieldService   = "service"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldUserID    = "user_id"
	FieldChatID    = "chat_id"
	FieldEventID   = "event_id"
	FieldEventKind = "event_kind"
	FieldRoute     = "route"
	FieldState     = "state"
	FieldWorker    = "worker"
	FieldBackend   = "backend"
)
