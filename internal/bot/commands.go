package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// User-facing texts.
const (
	startText        = "Hi! I'm a reminder bot. Use /set to add a reminder."
	setUsageText     = "❌ Error! Use the format: /set 2025-06-23 14:30 Call mom"
	pastDateText     = "❌ A reminder cannot be in the past."
	noActiveText     = "You have no active reminders."
	listHeaderText   = "📋 Your reminders:"
	noRemindersText  = "❌ You have no reminders."
	deleteUsageText  = "❌ Use: /delete NUMBER (e.g. /delete 1)"
	storageErrorText = "❌ Could not save your reminders. Please try again later."
	internalErrText  = "❌ Something went wrong. Please try again."
)

// ReminderCommands builds the reminder command set over svc.
func ReminderCommands(svc *reminder.Service, r *Router) []Command {
	h := &handlers{svc: svc, router: r}
	return []Command{
		{Name: "start", Description: "greeting", Usage: "/start", Handle: h.start},
		{Name: "set", Description: "add a reminder", Usage: "/set YYYY-MM-DD HH:MM text", Handle: h.set},
		{Name: "list", Description: "show your reminders", Usage: "/list", Handle: h.list},
		{Name: "delete", Aliases: []string{"del"}, Description: "delete a reminder by number", Usage: "/delete NUMBER", Handle: h.del},
		{Name: "help", Aliases: []string{"h"}, Description: "show help", Usage: "/help", Handle: h.help},
	}
}

type handlers struct {
	svc    *reminder.Service
	router *Router
}

func (h *handlers) start(ctx context.Context, req *Request) error {
	return req.Reply(ctx, startText)
}

func (h *handlers) set(ctx context.Context, req *Request) error {
	r, err := h.svc.Create(ctx, req.Owner(), req.Args)
	if err != nil {
		return h.fail(ctx, req, err, setUsageText)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Reminder set for %s — «%s»", r.DateTime(h.svc.Location()), r.Body))
}

func (h *handlers) list(ctx context.Context, req *Request) error {
	rs := h.svc.List(req.Owner())
	if len(rs) == 0 {
		return req.Reply(ctx, noActiveText)
	}
	lines := append([]string{listHeaderText}, reminder.ListLines(rs, h.svc.Location())...)
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (h *handlers) del(ctx context.Context, req *Request) error {
	r, err := h.svc.Delete(ctx, req.Owner(), req.Args)
	if err != nil {
		return h.fail(ctx, req, err, deleteUsageText)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Deleted: %s — %s", r.DateTime(h.svc.Location()), r.Body))
}

func (h *handlers) help(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range h.router.Commands() {
		fmt.Fprintf(&b, "%s — %s\n", c.Usage, c.Description)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

// fail replies with the message for err's kind. Input errors are answered
// and swallowed; anything else is returned for the request log.
func (h *handlers) fail(ctx context.Context, req *Request, err error, usage string) error {
	text, userErr := userMessage(err, usage)
	if rerr := req.Reply(ctx, text); rerr != nil {
		return errors.Join(err, rerr)
	}
	if userErr {
		req.Logger.Debug("rejected input", logx.Err(err))
		return nil
	}
	return err
}

func userMessage(err error, usage string) (text string, userErr bool) {
	switch {
	case errors.Is(err, reminder.ErrPastDate):
		return pastDateText, true
	case errors.Is(err, reminder.ErrNoReminders):
		return noRemindersText, true
	case errors.Is(err, reminder.ErrParse), errors.Is(err, reminder.ErrIndexOutOfRange):
		return usage, true
	case errors.Is(err, reminder.ErrStorageWrite):
		return storageErrorText, false
	default:
		return internalErrText, false
	}
}
