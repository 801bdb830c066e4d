// Package transport defines what the bot needs from a chat platform:
// inbound text updates, outbound text, and an optional command menu.
// internal/transport/telegram implements it over telebot.
package transport

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrUndeliverable wraps send errors that will never succeed for the chat:
// it was deleted, or the bot was blocked or removed.
var ErrUndeliverable = errors.New("transport: chat unreachable")

// RateLimitedError carries the wait the platform asked for.
type RateLimitedError struct {
	Err   error
	After time.Duration
}

func (e *RateLimitedError) Error() string {
	return "transport: flood wait " + e.After.String() + ": " + e.Err.Error()
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// Update is one inbound event. Only text messages are forwarded.
type Update struct {
	Message *Message
}

type Message struct {
	ChatID   int64
	ThreadID int // forum topic, 0 outside topics
	FromID   int64
	Text     string
}

// ChatTarget addresses a chat, or a topic inside a forum chat.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) String() string {
	if t.ThreadID == 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	return strconv.FormatInt(t.ChatID, 10) + "/" + strconv.Itoa(t.ThreadID)
}

// MessageRef identifies the first message of a (possibly split) send.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is all that reminder delivery and the alert log sink use.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish the
// command list in the client UI.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// SelfNamer is implemented by adapters that know the bot's own username,
// used to ignore "/cmd@OtherBot" in group chats.
type SelfNamer interface {
	Username() string
}
