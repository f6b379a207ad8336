package observability

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalLogger routes the Temporal SDK's log output through zerolog. SDK
// keys such as "WorkflowID" or "batchID" are written as "workflow_id" and
// "batch_id", the names the rest of the service logs under.
type TemporalLogger struct {
	logger zerolog.Logger
}

var _ log.WithLogger = (*TemporalLogger)(nil)

// NewTemporalLogger tags every entry with component=temporal.
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	writeFields(l.logger.Debug(), keyvals).Msg(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	writeFields(l.logger.Info(), keyvals).Msg(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	writeFields(l.logger.Warn(), keyvals).Msg(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	writeFields(l.logger.Error(), keyvals).Msg(msg)
}

// With returns a logger that adds keyvals to every entry.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	ctx := l.logger.With()
	forEachField(keyvals, func(key string, value interface{}) {
		if err, ok := value.(error); ok {
			ctx = ctx.AnErr(key, err)
			return
		}
		ctx = ctx.Interface(key, value)
	})
	return &TemporalLogger{logger: ctx.Logger()}
}

func writeFields(e *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	forEachField(keyvals, func(key string, value interface{}) {
		if err, ok := value.(error); ok {
			e.AnErr(key, err)
			return
		}
		e.Interface(key, value)
	})
	return e
}

// forEachField walks alternating keys and values. A trailing key with no
// value is reported under "extra".
func forEachField(keyvals []interface{}, fn func(key string, value interface{})) {
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 == len(keyvals) {
			fn("extra", keyvals[i])
			return
		}
		fn(fieldName(keyvals[i]), keyvals[i+1])
	}
}

// fieldName converts a camel-case key to snake case.
func fieldName(key interface{}) string {
	s, ok := key.(string)
	if !ok {
		s = fmt.Sprint(key)
	}

	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
