package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// maxChunk stays under Telegram's 4096 character message cap.
const maxChunk = 4000

// SendText delivers text, split into chunks when it is too long for one
// message. Every chunk waits for the shared send limiter.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	ref := kit.MessageRef{ChatID: to.ChatID}
	for i, part := range splitText(text, maxChunk) {
		if err := a.limiter.Wait(ctx); err != nil {
			return ref, err
		}
		sent, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, part, &tele.SendOptions{
			ParseMode:             o.ParseMode,
			DisableWebPagePreview: o.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return ref, classifySendError(err)
		}
		if i == 0 {
			ref.MessageID = sent.ID
		}
	}
	return ref, nil
}

// splitText cuts s into pieces of at most limit runes. A cut lands after the
// last newline in the window unless that leaves a piece under a third of
// limit; newlines at the cut are dropped.
func splitText(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	var parts []string
	for len(runes) > 0 {
		cut := min(limit, len(runes))
		if cut < len(runes) {
			for i := cut - 1; i >= limit/3; i-- {
				if runes[i] == '\n' {
					cut = i + 1
					break
				}
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}

var unreachable = []error{
	tele.ErrChatNotFound,
	tele.ErrBlockedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrUserIsDeactivated,
}

// classifySendError sorts API failures into what reminder delivery acts on:
// a flood wait (retry later), an unreachable chat (give up), or anything
// else (ordinary retry).
func classifySendError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.RateLimitedError{Err: err, After: time.Duration(flood.RetryAfter) * time.Second}
	}
	for _, target := range unreachable {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", kit.ErrUndeliverable, err)
		}
	}
	return err
}
