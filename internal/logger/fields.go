package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a call chain.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldImageID   = "image_id"
	FieldComponent = "component"
	FieldSource    = "source"
)

// Metric fields, attached per log line through Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
)
