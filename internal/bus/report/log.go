package report

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogHandler returns the default handler: it writes each record to the
// logger's diagnostic stream.
func LogHandler(logger zerolog.Logger) Handler {
	return HandlerFunc(func(e Error) {
		var ev *zerolog.Event
		switch e.Severity {
		case SeverityWarning:
			ev = logger.Warn()
		case SeverityFatal:
			// Not logger.Fatal: a dead worker must not take the process down.
			ev = logger.Error().Bool("fatal", true)
		default:
			ev = logger.Error()
		}

		ev = ev.Str("error_id", e.ID.String()).
			Str("kind", e.Kind.String())
		if e.Cause != nil {
			ev = ev.Err(e.Cause)
		}
		if e.Handler != "" {
			ev = ev.Str("handler", e.Handler)
		}
		if e.Listener != nil {
			ev = ev.Str("listener", fmt.Sprintf("%T", e.Listener))
		}
		if e.Payload != nil {
			ev = ev.Str("message_type", fmt.Sprintf("%T", e.Payload))
		}
		if e.Request != uuid.Nil {
			ev = ev.Str("request_id", e.Request.String())
		}
		if len(e.Stack) > 0 {
			ev = ev.Bytes("stack", e.Stack)
		}
		ev.Msg(e.Message)
	})
}
