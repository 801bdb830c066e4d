package telegram

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// UpdateMenuCommands publishes the command list via setMyCommands, skipping
// the call when the list equals the last one published.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	list, key := menuList(cmds)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if key == a.menuKey {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menuKey = key
	a.log.Info("command menu published", logx.Int("commands", len(list)))
	return nil
}

// menuList converts cmds, filling empty descriptions with the command name,
// and returns a key identifying the result.
func menuList(cmds []kit.BotCommand) ([]tele.Command, string) {
	var key strings.Builder
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = c.Command
		}
		list = append(list, tele.Command{Text: c.Command, Description: desc})
		key.WriteString(c.Command + "\x00" + desc + "\x00")
	}
	return list, key.String()
}
