package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

func TestSplitTextShortIsSingleChunk(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 6)
	in := line + "\n" + line + "\n" + line
	got := splitText(in, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d (%q), want 3", len(got), got)
	}
	for i, c := range got {
		if c != line {
			t.Fatalf("chunk %d = %q, want %q", i, c, line)
		}
	}
}

func TestSplitTextHardCutKeepsAllRunes(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("я", 25)
	got := splitText(in, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	if strings.Join(got, "") != in {
		t.Fatalf("rejoined text differs")
	}
}

func TestClassifySendError(t *testing.T) {
	t.Parallel()
	if err := classifySendError(tele.ErrBlockedByUser); !errors.Is(err, kit.ErrUndeliverable) {
		t.Fatalf("blocked: %v, want ErrUndeliverable", err)
	}
	if err := classifySendError(tele.ErrChatNotFound); !errors.Is(err, tele.ErrChatNotFound) {
		t.Fatalf("wrapped error lost its cause: %v", err)
	}
	plain := errors.New("connection reset")
	if err := classifySendError(plain); err != plain {
		t.Fatalf("plain error changed: %v", err)
	}
}

func TestMenuListFillsDescriptions(t *testing.T) {
	t.Parallel()
	list, key := menuList([]kit.BotCommand{{Command: "set", Description: "add a reminder"}, {Command: ""}, {Command: "list"}})
	if len(list) != 2 || list[1].Description != "list" {
		t.Fatalf("list = %+v", list)
	}
	_, same := menuList([]kit.BotCommand{{Command: "set", Description: "add a reminder"}, {Command: "list"}})
	if key != same {
		t.Fatal("equal menus produced different keys")
	}
	_, other := menuList([]kit.BotCommand{{Command: "set", Description: "add"}, {Command: "list"}})
	if key == other {
		t.Fatal("changed description kept the same key")
	}
}

func TestClassifyFloodWait(t *testing.T) {
	t.Parallel()
	err := classifySendError(tele.FloodError{RetryAfter: 7})
	var rl *kit.RateLimitedError
	if !errors.As(err, &rl) || rl.After.Seconds() != 7 {
		t.Fatalf("flood error = %v", err)
	}
}
