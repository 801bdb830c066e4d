package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field decorates one log record. Later fields override earlier ones with
// the same key.
type Field func(e *zerolog.Event)

func String(k, v string) Field         { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field        { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field    { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field  { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field      { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}

// Err is a no-op for a nil error.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Keys shared by every reminder record. The Telegram alert sink lists them
// first.
const (
	KeyOwner  = "owner"
	KeyJob    = "job"
	KeyFireAt = "fire_at"
)

// Owner tags the chat a reminder belongs to.
func Owner(id string) Field { return String(KeyOwner, id) }

// Job tags a scheduler/delivery handle such as "reminder:42:7".
func Job(name string) Field { return String(KeyJob, name) }

// FireAt tags the due time, printed in the zone it carries.
func FireAt(t time.Time) Field {
	return func(e *zerolog.Event) { e.Str(KeyFireAt, t.Format("2006-01-02 15:04 MST")) }
}
