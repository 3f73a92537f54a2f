// Package host defines what the workflow engine needs from the process it
// is embedded in: an event bus, the set of online players and message
// translation. Local provides an in-process implementation.
package host

import (
	"context"
	"sort"
	"sync"
)

// EventClass names a kind of host event, e.g. "player.join".
type EventClass string

// Event is a raw host event delivered to subscribers.
type Event interface {
	Class() EventClass
}

// PlayerEvent is an Event caused by a player.
type PlayerEvent interface {
	Event
	EventPlayer() Player
}

// Handler receives host events on the publishing goroutine.
type Handler func(ctx context.Context, ev Event)

// Subscription is returned by Bus.Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Bus delivers host events to subscribers.
type Bus interface {
	Subscribe(class EventClass, h Handler) (Subscription, error)
}

// Player is a connected participant that can receive chat.
type Player interface {
	ID() string
	Name() string
	Locale() string
	SendMessage(text string) error
}

// Server exposes live host state.
type Server interface {
	OnlinePlayers() []Player
}

// Translator localizes a message key. Unknown keys are returned verbatim
// after placeholder expansion.
type Translator interface {
	Translate(locale, key string, vars map[string]string) string
}

// Host bundles the collaborators the engine uses.
type Host interface {
	Bus
	Server
	Translator
}

// ClassInfo describes a subscribable event class for the editor.
type ClassInfo struct {
	Class       EventClass `json:"class"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
}

var (
	catalogMu sync.RWMutex
	catalog   = map[EventClass]ClassInfo{}
)

// RegisterClass adds an event class to the process catalog. Hosts call it
// from init for their own classes.
func RegisterClass(info ClassInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	catalog[info.Class] = info
}

// Classes returns the catalog sorted by class name.
func Classes() []ClassInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make([]ClassInfo, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// Standard event classes.
const (
	ClassPlayerJoin    EventClass = "player.join"
	ClassPlayerQuit    EventClass = "player.quit"
	ClassPlayerChat    EventClass = "player.chat"
	ClassPlayerDeath   EventClass = "player.death"
	ClassBlockBreak    EventClass = "block.break"
	ClassBlockPlace    EventClass = "block.place"
	ClassServerStarted EventClass = "server.started"
)

func init() {
	for _, c := range []ClassInfo{
		{Class: ClassPlayerJoin, Label: "Player Join", Description: "A player connected"},
		{Class: ClassPlayerQuit, Label: "Player Quit", Description: "A player disconnected"},
		{Class: ClassPlayerChat, Label: "Player Chat", Description: "A player sent a chat message"},
		{Class: ClassPlayerDeath, Label: "Player Death", Description: "A player died"},
		{Class: ClassBlockBreak, Label: "Block Break", Description: "A block was broken"},
		{Class: ClassBlockPlace, Label: "Block Place", Description: "A block was placed"},
		{Class: ClassServerStarted, Label: "Server Started", Description: "The server finished starting"},
	} {
		RegisterClass(c)
	}
}
