package present

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindd/internal/engine"
	logx "remindd/pkg/logx"
)

const defaultPollTimeout = 10 * time.Second

// TelegramConfig targets one chat (optionally a forum topic).
type TelegramConfig struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
}

// Telegram posts each active reminder as a message with a dismiss button
// and deletes the message when the reminder clears. Polling exists only to
// receive the button callbacks.
type Telegram struct {
	cfg TelegramConfig
	log logx.Logger
	bot *tele.Bot

	// onDismiss is invoked when the user taps the dismiss button. Wired to
	// engine.DismissActive.
	onDismiss func()

	runMu   sync.Mutex
	running bool

	mu   sync.Mutex
	msgs map[string]*tele.Message // reminder id -> posted message
}

func NewTelegram(cfg TelegramConfig, onDismiss func(), log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Telegram{
		cfg:       cfg,
		log:       log,
		bot:       b,
		onDismiss: onDismiss,
		msgs:      map[string]*tele.Message{},
	}
	p.registerHandlers()
	return p, nil
}

func (p *Telegram) registerHandlers() {
	p.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		// telebot prefixes callback data with "\f" for unique-button routing;
		// match loosely.
		if strings.Contains(cb.Data, "dismiss") {
			if p.onDismiss != nil {
				p.onDismiss()
			}
			return c.Respond(&tele.CallbackResponse{Text: "Dismissed"})
		}
		return c.Respond(&tele.CallbackResponse{})
	})
}

// Start launches the long-poll loop that receives dismiss callbacks.
func (p *Telegram) Start(ctx context.Context) {
	p.runMu.Lock()
	if p.running {
		p.runMu.Unlock()
		return
	}
	p.running = true
	p.runMu.Unlock()

	go func() {
		<-ctx.Done()
		p.bot.Stop()
	}()
	go func() {
		p.log.Info("telegram polling started")
		p.bot.Start()
		p.log.Info("telegram polling stopped")
	}()
}

// Stop halts polling. Best-effort: never blocks shutdown on a pending
// long-poll.
func (p *Telegram) Stop(ctx context.Context) {
	p.runMu.Lock()
	wasRunning := p.running
	p.running = false
	p.runMu.Unlock()
	if !wasRunning {
		return
	}

	done := make(chan struct{})
	go func() {
		p.bot.Stop()
		close(done)
	}()
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
	case <-time.After(grace):
		p.log.Warn("telegram stop timed out")
	case <-ctx.Done():
	}
}

func (p *Telegram) Show(ctx context.Context, n engine.Active, waiting int) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	markup := &tele.ReplyMarkup{}
	btn := markup.Data("Dismiss", "dismiss", n.ID)
	markup.Inline(markup.Row(btn))

	chat := &tele.Chat{ID: p.cfg.ChatID}
	msg, err := p.bot.Send(chat, formatHTML(n, waiting), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              p.cfg.ThreadID,
		ReplyMarkup:           markup,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.msgs[n.ID] = msg
	p.mu.Unlock()
	return nil
}

func (p *Telegram) Clear(ctx context.Context, id string) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	p.mu.Lock()
	msg := p.msgs[id]
	delete(p.msgs, id)
	p.mu.Unlock()
	if msg == nil {
		return nil
	}
	if err := p.bot.Delete(msg); err != nil {
		// Deleting can fail when the message is too old or already gone;
		// the reminder is dismissed either way.
		p.log.Debug("telegram delete failed", logx.String("id", id), logx.Err(err))
	}
	return nil
}
