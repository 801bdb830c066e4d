package reminder

import (
	"errors"
	"time"
)

// Layout is the date-time format users type and the snapshot stores.
const Layout = "2006-01-02 15:04"

var (
	// ErrParse reports malformed command arguments.
	ErrParse = errors.New("malformed arguments")
	// ErrPastDate reports a reminder time strictly before now.
	ErrPastDate = errors.New("reminder time is in the past")
	// ErrIndexOutOfRange reports a delete index outside 1..len.
	ErrIndexOutOfRange = errors.New("reminder index out of range")
	// ErrNoReminders reports a delete against an empty list.
	ErrNoReminders = errors.New("no reminders")
	// ErrStorageWrite reports a snapshot write failure.
	ErrStorageWrite = errors.New("could not save reminders")
	// ErrStorageCorrupt reports an unreadable snapshot at startup.
	ErrStorageCorrupt = errors.New("reminder snapshot corrupt")
)

// Reminder is one pending notification for an owner chat.
type Reminder struct {
	FireAt time.Time
	Body   string
	// Job is the armed timer handle. Runtime only; never persisted or shown.
	Job string
}

// DateTime renders FireAt in Layout within loc.
func (r Reminder) DateTime(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return r.FireAt.In(loc).Format(Layout)
}

func (r Reminder) same(o Reminder) bool {
	return r.FireAt.Equal(o.FireAt) && r.Body == o.Body
}
