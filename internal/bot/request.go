package bot

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Command is one slash command. Name and Aliases are matched
// case-insensitively; only Name shows in the client menu.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handle      HandlerFunc
}

// Request is a parsed command on its way to a handler.
type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	sender kit.Sender
}

// Owner keys reminders by chat, so a group shares one list.
func (r *Request) Owner() string { return strconv.FormatInt(r.Chat.ChatID, 10) }

func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// parseCommand reads "/name[@bot] args..." into a lowercase name and the
// whitespace-separated args. A command addressed to a bot other than self
// is not ours; with self unknown every @suffix is accepted.
func parseCommand(text, self string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	head, isCmd := strings.CutPrefix(fields[0], "/")
	if !isCmd {
		return "", nil, false
	}
	head, addressee, addressed := strings.Cut(head, "@")
	if head == "" || addressed && self != "" && !strings.EqualFold(addressee, self) {
		return "", nil, false
	}
	return strings.ToLower(head), fields[1:], true
}

var reqSeq atomic.Uint64

// newReqID tags the log lines of one request: start time and a counter in
// base36, plus two random letters to tell restarts apart.
func newReqID() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return strconv.FormatInt(time.Now().UnixMilli(), 36) +
		"-" + strconv.FormatUint(reqSeq.Add(1), 36) +
		string([]byte{letters[rand.IntN(26)], letters[rand.IntN(26)]})
}
