// Package dialog runs the multi-turn conversations behind the chat bot.
// Each command collects its fields one message at a time and then calls
// the store once. State lives in a session per conversation, so
// concurrent users never see each other's answers.
package dialog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"places_bot/src/types"
)

// SessionKey identifies one conversation: a user inside a chat.
type SessionKey struct {
	ChatID int64
	UserID int64
}

const (
	CmdStart          = "start"
	CmdPlaceByName    = "place_by_name"
	CmdPlaceByAddress = "place_by_address"
	CmdListPlaces     = "list_places"
	CmdUpdatePlace    = "update_place"
	CmdAddPlace       = "add_place"
	CmdDeletePlace    = "delete_place"
	CmdCancel         = "cancel"
)

type Command struct {
	Name        string
	Description string
}

// Commands lists every command in the order the help text shows them.
var Commands = []Command{
	{CmdStart, "show this help"},
	{CmdPlaceByName, "find a place's address by its name"},
	{CmdPlaceByAddress, "find a place's name by its address"},
	{CmdListPlaces, "list places whose category contains a word"},
	{CmdUpdatePlace, "change a place's address"},
	{CmdAddPlace, "add a new place"},
	{CmdDeletePlace, "delete a place by name"},
	{CmdCancel, "abandon the current command"},
}

// Hooks observes dialogue activity. Nil fields are skipped.
type Hooks struct {
	Started func(command string)
}

type Engine struct {
	store types.DataStore
	log   *slog.Logger
	hooks Hooks
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[SessionKey]*session
}

type session struct {
	flow    *flow
	fields  []string
	touched time.Time
}

type Option func(*Engine)

// WithTTL sets how long an unanswered prompt stays pending.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

func New(store types.DataStore, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		log:      log,
		ttl:      10 * time.Minute,
		now:      time.Now,
		sessions: make(map[SessionKey]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Command begins the named command for key, replacing any dialogue that
// was in progress, and returns the reply to send.
func (e *Engine) Command(ctx context.Context, key SessionKey, name string) string {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/")

	e.mu.Lock()
	e.sweep()
	_, pending := e.sessions[key]
	delete(e.sessions, key)

	switch name {
	case CmdStart, "help":
		e.mu.Unlock()
		return HelpText()
	case CmdCancel:
		e.mu.Unlock()
		if pending {
			return msgCancelled
		}
		return msgNothingToCancel
	}

	f, ok := flows[name]
	if !ok {
		e.mu.Unlock()
		return msgUnknownCommand
	}
	e.sessions[key] = &session{flow: f, touched: e.now()}
	e.mu.Unlock()

	if e.hooks.Started != nil {
		e.hooks.Started(name)
	}
	return f.prompts[0]
}

// Text feeds one plain message into key's dialogue. When the message
// completes the dialogue the store is called and the session dropped.
func (e *Engine) Text(ctx context.Context, key SessionKey, text string) string {
	answer := types.Normalize(text)

	e.mu.Lock()
	s, ok := e.sessions[key]
	if ok && e.expired(s) {
		delete(e.sessions, key)
		ok = false
	}
	if !ok {
		e.mu.Unlock()
		return msgNoDialog
	}
	if answer == "" {
		prompt := s.flow.prompts[len(s.fields)]
		e.mu.Unlock()
		return prompt
	}
	if s.flow.substring {
		answer = types.Compose(text)
	}

	s.fields = append(s.fields, answer)
	s.touched = e.now()
	if len(s.fields) < len(s.flow.prompts) {
		prompt := s.flow.prompts[len(s.fields)]
		e.mu.Unlock()
		return prompt
	}
	delete(e.sessions, key)
	e.mu.Unlock()

	return s.flow.finish(ctx, e, s.fields)
}

// Pending reports whether key has a dialogue waiting for input.
func (e *Engine) Pending(key SessionKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[key]
	return ok && !e.expired(s)
}

func (e *Engine) expired(s *session) bool {
	return e.ttl > 0 && e.now().Sub(s.touched) > e.ttl
}

// sweep drops expired sessions. Callers hold e.mu.
func (e *Engine) sweep() {
	for k, s := range e.sessions {
		if e.expired(s) {
			delete(e.sessions, k)
		}
	}
}

// HelpText lists every command.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Hi! I look up places in the city. Commands:\n")
	for _, c := range Commands {
		b.WriteString("/" + c.Name + " - " + c.Description + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
