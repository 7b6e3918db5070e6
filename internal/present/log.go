package present

import (
	"context"

	"remindd/internal/engine"
	logx "remindd/pkg/logx"
)

// Log writes reminders to the structured log. It is the default presenter
// and the fallback when no delivery channel is configured.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log}
}

func (p *Log) Show(_ context.Context, n engine.Active, waiting int) error {
	p.log.Info("REMINDER",
		logx.String("title", n.Event.Title),
		logx.String("tier", n.Tier.Label),
		logx.Time("event_start", n.Event.Start),
		logx.String("location", n.Event.Location),
		logx.Int("waiting", waiting))
	return nil
}

func (p *Log) Clear(_ context.Context, id string) error {
	p.log.Debug("reminder cleared", logx.String("id", id))
	return nil
}
