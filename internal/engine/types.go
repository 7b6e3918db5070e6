package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/store"
	logx "remindd/pkg/logx"
)

// lateWindow separates "due" from "missed" and doubles as the proactive
// persist horizon. Fixed by design, not configuration.
const lateWindow = 5 * time.Minute

const (
	defaultScanInterval   = time.Minute
	defaultDisplayTimeout = 10 * time.Second
	storeCallTimeout      = 5 * time.Second
)

// Config controls the engine's timers and importance detection.
type Config struct {
	// ScanInterval is the due-pass period (default 60s).
	ScanInterval time.Duration
	// DisplayTimeout auto-dismisses the active reminder (default 10s).
	DisplayTimeout time.Duration
	// ImportanceMarker selects the long tier schedule when found in an
	// event description (default "!important").
	ImportanceMarker string
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = defaultScanInterval
	}
	if c.DisplayTimeout <= 0 {
		c.DisplayTimeout = defaultDisplayTimeout
	}
	if c.ImportanceMarker == "" {
		c.ImportanceMarker = DefaultImportanceMarker
	}
	return c
}

// Active is an in-memory reminder either waiting in the queue or occupying
// the display slot. It is created by a scan pass or rehydration and
// destroyed when it leaves the queue.
type Active struct {
	ID        string
	Event     model.Event
	Tier      Tier
	CreatedAt time.Time
}

// Presenter renders whichever reminder the engine marks active. The engine
// is agnostic to rendering; implementations live in internal/present.
type Presenter interface {
	// Show displays a reminder. waiting is the number of reminders queued
	// behind it, surfaced as auxiliary information only.
	Show(ctx context.Context, n Active, waiting int) error
	// Clear removes the currently displayed reminder.
	Clear(ctx context.Context, id string) error
}

// ReminderEvent is the bus payload for reminder lifecycle events.
type ReminderEvent struct {
	ID      string    `json:"id"`
	Title   string    `json:"title,omitempty"`
	Tier    string    `json:"tier,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Waiting int       `json:"waiting,omitempty"`
	At      time.Time `json:"at"`
}

// ScanEvent is the bus payload for completed due passes.
type ScanEvent struct {
	Due int       `json:"due"`
	At  time.Time `json:"at"`
}

// Snapshot is a point-in-time view of engine state (for status surfaces).
type Snapshot struct {
	Events     int
	Queued     int
	Dispatched int
	Active     *Active
}

type cmdKind int

const (
	cmdEvents cmdKind = iota
	cmdTick
	cmdDismiss
	cmdApply
)

type command struct {
	kind   cmdKind
	events []model.Event
}

// Engine is the reminder scheduling and delivery actor.
type Engine struct {
	log   logx.Logger
	bus   eventbus.Bus
	store store.Store
	pres  Presenter

	cmds chan command

	// lifecycle, guarded by mu
	mu        sync.Mutex
	cfg       Config
	running   bool
	stopCh    chan struct{}
	loopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc

	// actor state, guarded by smu. Only the run goroutine mutates it;
	// Snapshot() takes the lock for reads.
	smu        sync.Mutex
	events     []model.Event
	dispatched map[string]struct{}
	persisted  map[string]struct{}
	queue      []Active
	active     *Active
	dismiss    *time.Timer

	// storeErrs throttles "store unavailable" warnings so a dead store
	// cannot spam the log at scan frequency.
	storeErrs *rate.Limiter
}
