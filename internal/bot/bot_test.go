package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	menu  []kit.BotCommand
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{MessageID: len(f.texts)}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeSender) waitTexts(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.texts) >= n {
			out := append([]string(nil), f.texts...)
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Fatalf("got %d replies, want %d: %q", len(f.texts), n, f.texts)
	return nil
}

type nopScheduler struct{}

func (nopScheduler) AddOnce(name string, _ time.Time, _ time.Duration, _ func(context.Context) error) (string, error) {
	return name, nil
}
func (nopScheduler) Remove(string) bool { return true }

type harness struct {
	sender  *fakeSender
	backend *storage.Memory
	updates chan kit.Update
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	backend := storage.NewMemory()
	store, err := reminder.OpenStore(ctx, backend, time.UTC)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	svc := reminder.NewService(reminder.Config{Location: time.UTC}, store, nopScheduler{}, nil, logx.Nop())

	sender := &fakeSender{}
	r := NewRouter(RouterConfig{Workers: 1, Timeout: time.Second}, sender, logx.Nop())
	r.SetCommands(ctx, ReminderCommands(svc, r))

	h := &harness{sender: sender, backend: backend, updates: make(chan kit.Update)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, h.updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) send(text string) {
	h.updates <- kit.Update{Message: &kit.Message{ChatID: 42, FromID: 7, Text: text}}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		self string
		name string
		args []string
		ok   bool
	}{
		{"/set 2099-01-01 10:00 hi there", "", "set", []string{"2099-01-01", "10:00", "hi", "there"}, true},
		{"/LIST@remind_bot", "", "list", []string{}, true},
		{"/LIST@Remind_Bot", "remind_bot", "list", []string{}, true},
		{"/delete@SomeOtherBot 1", "remind_bot", "", nil, false},
		{"/delete@ 1", "remind_bot", "", nil, false},
		{"/delete 1", "remind_bot", "delete", []string{"1"}, true},
		{"  /delete   2 ", "", "delete", []string{"2"}, true},
		{"hello", "", "", nil, false},
		{"/", "", "", nil, false},
		{"/@remind_bot", "remind_bot", "", nil, false},
		{"", "", "", nil, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in, tc.self)
		if ok != tc.ok || name != tc.name {
			t.Fatalf("parseCommand(%q, %q) = %q,%v want %q,%v", tc.in, tc.self, name, ok, tc.name, tc.ok)
		}
		if ok && !reflect.DeepEqual(args, tc.args) {
			t.Fatalf("parseCommand(%q) args = %q want %q", tc.in, args, tc.args)
		}
	}
}

type namedSender struct {
	*fakeSender
	name string
}

func (n namedSender) Username() string { return n.name }

func TestCommandsForOtherBotsAreIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &fakeSender{}
	r := NewRouter(RouterConfig{Workers: 1}, namedSender{sender, "remind_bot"}, logx.Nop())
	r.SetCommands(ctx, []Command{{Name: "list", Handle: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "listed "+strings.Join(req.Args, ","))
	}}})

	updates := make(chan kit.Update)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for _, text := range []string{"/list@OtherBot a", "/nope@OtherBot", "/list@REMIND_BOT b"} {
		updates <- kit.Update{Message: &kit.Message{ChatID: 5, FromID: 5, Text: text}}
	}
	// neither the foreign /list nor the foreign unknown command is answered.
	sender.waitTexts(t, 1)
	time.Sleep(50 * time.Millisecond)
	sender.mu.Lock()
	got := append([]string(nil), sender.texts...)
	sender.mu.Unlock()
	if !reflect.DeepEqual(got, []string{"listed b"}) {
		t.Fatalf("replies = %q, want only the command addressed to us", got)
	}
}

func TestSetCommandsUpdatesMenu(t *testing.T) {
	sender := &fakeSender{}
	r := NewRouter(RouterConfig{}, sender, logx.Nop())
	noop := func(context.Context, *Request) error { return nil }
	r.SetCommands(context.Background(), []Command{
		{Name: "Set", Description: "add", Handle: noop},
		{Name: "", Handle: noop},
		{Name: "broken"},
		{Name: "list", Aliases: []string{"ls", "set"}, Description: "show", Handle: noop},
	})
	want := []kit.BotCommand{{Command: "set", Description: "add"}, {Command: "list", Description: "show"}}
	if !reflect.DeepEqual(sender.menu, want) {
		t.Fatalf("menu = %+v want %+v", sender.menu, want)
	}
	if got := r.commands["ls"].Name; got != "list" {
		t.Fatalf("alias ls -> %q", got)
	}
	if got := r.commands["set"].Name; got != "set" {
		t.Fatalf("alias must not shadow command, got %q", got)
	}
}

func TestReminderConversation(t *testing.T) {
	h := newHarness(t)

	h.send("/start")
	h.send("/list")
	h.send("/set 2099-06-23 14:30 Call   mom")
	h.send("/set 2099-06-24 09:00 Dentist")
	h.send("/list")
	h.send("/delete 1")
	h.send("/list")

	got := h.sender.waitTexts(t, 7)
	want := []string{
		startText,
		noActiveText,
		"✅ Reminder set for 2099-06-23 14:30 — «Call mom»",
		"✅ Reminder set for 2099-06-24 09:00 — «Dentist»",
		"📋 Your reminders:\n1) 2099-06-23 14:30 — Call mom\n2) 2099-06-24 09:00 — Dentist",
		"✅ Deleted: 2099-06-23 14:30 — Call mom",
		"📋 Your reminders:\n1) 2099-06-24 09:00 — Dentist",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("replies:\n%q\nwant\n%q", got, want)
	}
}

func TestInputErrors(t *testing.T) {
	h := newHarness(t)

	// Unknown commands are answered by the dispatcher itself, so it goes
	// first to keep reply order deterministic.
	h.send("/nope")
	h.send("/delete 1")
	h.send("/set tomorrow lunch")
	h.send("/set 2000-01-01 10:00 too late")
	h.send("/set 2099-01-01 10:00")
	h.send("/set 2099-01-01 10:00 ok")
	h.send("/delete 5")
	h.send("/delete x")

	got := h.sender.waitTexts(t, 8)
	want := []string{
		unknownCommandText,
		noRemindersText,
		setUsageText,
		pastDateText,
		setUsageText,
		"✅ Reminder set for 2099-01-01 10:00 — «ok»",
		deleteUsageText,
		deleteUsageText,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("replies:\n%q\nwant\n%q", got, want)
	}
}

func TestStorageFailureReply(t *testing.T) {
	h := newHarness(t)
	h.backend.SetFailSaves(true)

	h.send("/set 2099-01-01 10:00 lost")
	h.send("/list")

	got := h.sender.waitTexts(t, 2)
	if got[0] != storageErrorText {
		t.Fatalf("reply = %q want storage error", got[0])
	}
	if got[1] != noActiveText {
		t.Fatalf("failed create must not be listed, got %q", got[1])
	}
}

func TestHelpListsCommands(t *testing.T) {
	h := newHarness(t)
	h.send("/help")
	got := h.sender.waitTexts(t, 1)[0]
	for _, c := range []string{"/start", "/set", "/list", "/delete", "/help"} {
		if !strings.Contains(got, c) {
			t.Fatalf("help missing %s:\n%s", c, got)
		}
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err     error
		text    string
		userErr bool
	}{
		{fmt.Errorf("x: %w", reminder.ErrPastDate), pastDateText, true},
		{reminder.ErrNoReminders, noRemindersText, true},
		{reminder.ErrParse, "usage", true},
		{fmt.Errorf("%w: 9 of 2", reminder.ErrIndexOutOfRange), "usage", true},
		{fmt.Errorf("%w: disk", reminder.ErrStorageWrite), storageErrorText, false},
		{errors.New("boom"), internalErrText, false},
	}
	for _, tc := range cases {
		text, userErr := userMessage(tc.err, "usage")
		if text != tc.text || userErr != tc.userErr {
			t.Fatalf("userMessage(%v) = %q,%v want %q,%v", tc.err, text, userErr, tc.text, tc.userErr)
		}
	}
}

func TestMWTimeoutReadsCurrentValue(t *testing.T) {
	var limit time.Duration
	var gotDeadline bool
	h := Chain(func(ctx context.Context, _ *Request) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	}, MWTimeout(func() time.Duration { return limit }))

	req := &Request{Logger: logx.Nop()}
	_ = h(context.Background(), req)
	if gotDeadline {
		t.Fatalf("zero limit must not set a deadline")
	}
	limit = time.Second
	_ = h(context.Background(), req)
	if !gotDeadline {
		t.Fatalf("expected deadline after limit change")
	}
}

func TestMWPanicRecover(t *testing.T) {
	h := Chain(func(context.Context, *Request) error { panic("kaboom") }, MWPanicRecover())
	err := h(context.Background(), &Request{Logger: logx.Nop()})
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v", err)
	}
}
