package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultLocale is used when a player's locale has no translation table.
const DefaultLocale = "en_us"

// GenericEvent is a simple Event carrying a payload map.
type GenericEvent struct {
	EventClass EventClass
	Player     Player
	Data       map[string]any
}

func (e *GenericEvent) Class() EventClass   { return e.EventClass }
func (e *GenericEvent) EventPlayer() Player { return e.Player }

func (e *GenericEvent) String() string {
	if e.Player != nil {
		return fmt.Sprintf("%s(%s)", e.EventClass, e.Player.Name())
	}
	return string(e.EventClass)
}

// Local is an in-process Host. Publish dispatches synchronously on the
// caller's goroutine.
type Local struct {
	logger *zap.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventClass]map[uint64]Handler
	players  map[string]Player
	messages map[string]map[string]string // locale -> key -> template
}

// NewLocal creates an empty local host.
func NewLocal(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		logger:   logger.With(zap.String("component", "local_host")),
		handlers: make(map[EventClass]map[uint64]Handler),
		players:  make(map[string]Player),
		messages: make(map[string]map[string]string),
	}
}

// Subscribe implements Bus.
func (l *Local) Subscribe(class EventClass, h Handler) (Subscription, error) {
	if class == "" {
		return nil, fmt.Errorf("event class is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	if l.handlers[class] == nil {
		l.handlers[class] = make(map[uint64]Handler)
	}
	l.handlers[class][id] = h
	return &localSubscription{l: l, class: class, id: id}, nil
}

type localSubscription struct {
	l     *Local
	class EventClass
	id    uint64
	once  sync.Once
}

func (s *localSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.l.mu.Lock()
		defer s.l.mu.Unlock()
		delete(s.l.handlers[s.class], s.id)
	})
}

// Subscribers returns the number of handlers for a class.
func (l *Local) Subscribers(class EventClass) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers[class])
}

// Publish delivers ev to every handler of its class in subscription
// order. A panicking handler is logged and does not stop delivery.
func (l *Local) Publish(ctx context.Context, ev Event) int {
	l.mu.RLock()
	subs := l.handlers[ev.Class()]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = subs[id]
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		l.deliver(ctx, h, ev)
	}
	return len(handlers)
}

func (l *Local) deliver(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panicked",
				zap.String("class", string(ev.Class())),
				zap.Any("panic", r))
		}
	}()
	h(ctx, ev)
}

// AddPlayer marks a player online.
func (l *Local) AddPlayer(p Player) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players[p.ID()] = p
}

// RemovePlayer marks a player offline.
func (l *Local) RemovePlayer(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.players, id)
}

// OnlinePlayers implements Server, sorted by name.
func (l *Local) OnlinePlayers() []Player {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Player, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SetMessages installs the translation table of a locale.
func (l *Local) SetMessages(locale string, messages map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	table := make(map[string]string, len(messages))
	for k, v := range messages {
		table[k] = v
	}
	l.messages[strings.ToLower(locale)] = table
}

// Translate implements Translator.
func (l *Local) Translate(locale, key string, vars map[string]string) string {
	l.mu.RLock()
	tmpl, ok := l.messages[strings.ToLower(locale)][key]
	if !ok {
		tmpl, ok = l.messages[DefaultLocale][key]
	}
	l.mu.RUnlock()
	if !ok {
		tmpl = key
	}
	return Expand(tmpl, vars)
}

// Expand replaces {name} placeholders with vars. Unknown placeholders are
// left as they are.
func Expand(tmpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end += open
		b.WriteString(tmpl[:open])
		if v, ok := vars[tmpl[open+1:end]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(tmpl[open : end+1])
		}
		tmpl = tmpl[end+1:]
	}
}

// LocalPlayer is a Player that records received messages.
type LocalPlayer struct {
	id     string
	name   string
	locale string

	mu       sync.Mutex
	received []string
}

// NewLocalPlayer creates a player.
func NewLocalPlayer(id, name, locale string) *LocalPlayer {
	if locale == "" {
		locale = DefaultLocale
	}
	return &LocalPlayer{id: id, name: name, locale: locale}
}

func (p *LocalPlayer) ID() string     { return p.id }
func (p *LocalPlayer) Name() string   { return p.name }
func (p *LocalPlayer) Locale() string { return p.locale }
func (p *LocalPlayer) String() string { return p.name }

// SendMessage records text.
func (p *LocalPlayer) SendMessage(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, text)
	return nil
}

// Messages returns everything the player received.
func (p *LocalPlayer) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.received...)
}
