// Package bot connects the dialog engine to Telegram.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"places_bot/src/dialog"
	"places_bot/src/ratelimit"
)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

const msgSlowDown = "Too many messages, please slow down."

type Options struct {
	Token       string
	PollTimeout time.Duration
	Limiter     *ratelimit.KeyLimiter
	OnThrottle  func()
	Offline     bool
}

type Bot struct {
	tb         *tele.Bot
	engine     *dialog.Engine
	limiter    *ratelimit.KeyLimiter
	onThrottle func()
	log        *slog.Logger
	ctx        context.Context
}

type registrar interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

func New(opts Options, engine *dialog.Engine, log *slog.Logger) (*Bot, error) {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	b := &Bot{
		engine:     engine,
		limiter:    opts.Limiter,
		onThrottle: opts.OnThrottle,
		log:        log,
		ctx:        context.Background(),
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		Poller:  &tele.LongPoller{Timeout: opts.PollTimeout},
		Offline: opts.Offline,
		OnError: func(err error, c tele.Context) {
			log.Error("telegram handler failed", "err", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	b.tb = tb
	b.register(tb)
	return b, nil
}

func (b *Bot) register(r registrar) {
	for _, cmd := range dialog.Commands {
		name := cmd.Name
		r.Handle("/"+name, func(c tele.Context) error {
			return b.reply(c, b.engine.Command(b.ctx, sessionKey(c), name))
		}, b.throttle)
	}
	r.Handle(tele.OnText, func(c tele.Context) error {
		text := c.Text()
		if strings.HasPrefix(text, "/") {
			return b.reply(c, b.engine.Command(b.ctx, sessionKey(c), strings.Fields(text)[0]))
		}
		return b.reply(c, b.engine.Text(b.ctx, sessionKey(c), text))
	}, b.throttle)
}

// Run publishes the command list and polls Telegram until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	commands := make([]tele.Command, 0, len(dialog.Commands))
	for _, c := range dialog.Commands {
		commands = append(commands, tele.Command{Text: c.Name, Description: c.Description})
	}
	if err := b.tb.SetCommands(commands); err != nil {
		b.log.Warn("could not publish bot commands", "err", err)
	}

	go func() {
		<-ctx.Done()
		b.tb.Stop()
	}()
	b.log.Info("telegram bot polling")
	b.tb.Start()
	return nil
}

func (b *Bot) throttle(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !b.limiter.Allow(limiterKey(c), time.Now()) {
			if b.onThrottle != nil {
				b.onThrottle()
			}
			return c.Send(msgSlowDown)
		}
		return next(c)
	}
}

func (b *Bot) reply(c tele.Context, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if err := c.Send(part); err != nil {
			return err
		}
	}
	return nil
}

func sessionKey(c tele.Context) dialog.SessionKey {
	var key dialog.SessionKey
	if chat := c.Chat(); chat != nil {
		key.ChatID = chat.ID
	}
	if u := c.Sender(); u != nil {
		key.UserID = u.ID
	}
	return key
}

func limiterKey(c tele.Context) string {
	if u := c.Sender(); u != nil {
		return strconv.FormatInt(u.ID, 10)
	}
	if chat := c.Chat(); chat != nil {
		return "chat:" + strconv.FormatInt(chat.ID, 10)
	}
	return ""
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// to break at blank lines, then at newlines.
func splitMessage(text string, limit int) []string {
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		chunk := string(runes[:limit])
		cut := strings.LastIndex(chunk, "\n\n")
		sep := 2
		if cut <= 0 {
			cut = strings.LastIndex(chunk, "\n")
			sep = 1
		}
		if cut <= 0 {
			cut = len(chunk)
			sep = 0
		}
		parts = append(parts, chunk[:cut])
		runes = runes[len([]rune(chunk[:cut]))+sep:]
	}
	return append(parts, string(runes))
}
