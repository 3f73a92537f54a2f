package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/workflow"
)

// ErrPlayerOffline is returned when the player field names nobody online.
var ErrPlayerOffline = errors.New("player is not online")

func sendChatType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeSendChat,
		Group:              workflow.GroupDisplay,
		Description:        "Sends a localized chat message to one player or everyone online",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("player", workflow.TypeAny).
				WithOptionSource(onlinePlayerOptions).
				WithDescription("Target player; broadcast when empty"),
			workflow.NewField("message", workflow.TypeString).Require().
				WithDescription("Translation key or text; {variable} placeholders are expanded"),
		},
		New: func(spec workflow.Spec) (workflow.Node, error) {
			return &SendChat{
				Base:    workflow.NewBase(spec),
				player:  spec.Fields.Consumer("player"),
				message: spec.Fields.Consumer("message"),
			}, nil
		},
	}
}

func onlinePlayerOptions(h host.Host) []workflow.Option {
	if h == nil {
		return nil
	}
	players := h.OnlinePlayers()
	opts := make([]workflow.Option, 0, len(players))
	for _, p := range players {
		opts = append(opts, workflow.Option{Label: p.Name(), Key: p.ID(), Value: p.Name()})
	}
	return opts
}

// SendChat delivers a message through the host translator.
type SendChat struct {
	workflow.Base
	player  workflow.Consumer
	message workflow.Consumer
}

func (n *SendChat) Execute(_ context.Context, ev *workflow.Event) (workflow.Result, error) {
	msg, err := n.message.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}
	target, err := n.player.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}

	h := ev.Graph().Host()
	var recipients []host.Player
	if broadcastTarget(target) {
		recipients = h.OnlinePlayers()
	} else {
		p, ok := resolvePlayer(h, target)
		if !ok {
			return workflow.Stop(), fmt.Errorf("%w: %s", ErrPlayerOffline, target.String())
		}
		recipients = []host.Player{p}
	}

	vars := templateVars(ev)
	for _, p := range recipients {
		text := h.Translate(p.Locale(), msg.String(), vars)
		if err := p.SendMessage(text); err != nil {
			ev.Graph().Logger().Warn("send chat failed",
				zap.String("node_id", n.ID()),
				zap.String("player", p.Name()),
				zap.Error(err))
		}
	}
	return workflow.Continue(), nil
}

// broadcastTarget 空值或空白字符串都表示发给所有在线玩家
func broadcastTarget(v workflow.Value) bool {
	if v.IsNull() {
		return true
	}
	s, ok := v.AsString()
	return ok && strings.TrimSpace(s) == ""
}

// resolvePlayer accepts a player handle, an event caused by a player, or
// a player id or name.
func resolvePlayer(h host.Host, v workflow.Value) (host.Player, bool) {
	if obj, ok := v.Opaque(); ok {
		switch t := obj.(type) {
		case host.Player:
			return t, true
		case host.PlayerEvent:
			p := t.EventPlayer()
			return p, p != nil
		}
		return nil, false
	}
	ref := v.String()
	for _, p := range h.OnlinePlayers() {
		if p.ID() == ref || p.Name() == ref {
			return p, true
		}
	}
	return nil, false
}

func templateVars(ev *workflow.Event) map[string]string {
	vars := ev.Variables()
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v.String()
	}
	return out
}
