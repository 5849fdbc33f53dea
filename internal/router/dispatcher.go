package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking-bot/internal/metrics"
	"booking-bot/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// Handler is what the dispatcher feeds. *Router implements it.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Response, error)
}

// Sender delivers a reply to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, resp Response) error
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// RateLimit is the sustained events per second allowed per user. Zero
	// disables limiting.
	RateLimit rate.Limit
	Burst     int
}

// Dispatcher reads a single ingress queue and shards events by user onto a
// fixed set of workers, so one user's events are handled in arrival order
// while different users proceed in parallel.
type Dispatcher struct {
	handler Handler
	sender  Sender
	cfg     DispatcherConfig
	ingress chan Event
	shards  []chan Event

	limMu    sync.Mutex
	limiters map[int64]*rate.Limiter

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(h Handler, s Sender, cfg DispatcherConfig, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		handler:  h,
		sender:   s,
		cfg:      cfg,
		ingress:  make(chan Event, cfg.QueueSize),
		shards:   make([]chan Event, cfg.Workers),
		limiters: make(map[int64]*rate.Limiter),
		log:      log,
		metrics:  m,
	}
	for i := range d.shards {
		d.shards[i] = make(chan Event, cfg.QueueSize)
	}
	return d
}

// Submit enqueues ev, blocking while the queue is full. Events over the
// user's rate are dropped with ErrRateLimited.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if !d.allow(ev.UserID) {
		d.metrics.EventDropped("rate_limited")
		d.log.Warn("Event dropped",
			zap.String(logger.FieldEventID, ev.ID),
			zap.Int64(logger.FieldUserID, ev.UserID),
			zap.String("reason", "rate_limited"),
		)
		return ErrRateLimited
	}

	select {
	case d.ingress <- ev:
		d.metrics.SetQueueDepth(len(d.ingress))
		return nil
	case <-ctx.Done():
		d.metrics.EventDropped("shutdown")
		return ctx.Err()
	}
}

func (d *Dispatcher) allow(userID int64) bool {
	if d.cfg.RateLimit <= 0 {
		return true
	}

	d.limMu.Lock()
	l, ok := d.limiters[userID]
	if !ok {
		l = rate.NewLimiter(d.cfg.RateLimit, d.cfg.Burst)
		d.limiters[userID] = l
	}
	d.limMu.Unlock()

	return l.Allow()
}

// PruneLimiters forgets limiters that are back to a full bucket.
func (d *Dispatcher) PruneLimiters() int {
	d.limMu.Lock()
	defer d.limMu.Unlock()

	n := 0
	for id, l := range d.limiters {
		if l.Tokens() >= float64(d.cfg.Burst) {
			delete(d.limiters, id)
			n++
		}
	}
	return n
}

// Run starts the workers and blocks until ctx is canceled and every worker
// has returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, ch := range d.shards {
		i, ch := i, ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, i, ch)
		}()
	}

	d.log.Info("Dispatcher started", zap.Int("workers", len(d.shards)))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-d.ingress:
			d.metrics.SetQueueDepth(len(d.ingress))
			select {
			case d.shards[d.shard(ev.UserID)] <- ev:
			case <-ctx.Done():
				d.metrics.EventDropped("shutdown")
				break loop
			}
		}
	}

	for _, ch := range d.shards {
		close(ch)
	}
	d.drain()
	wg.Wait()
	d.log.Info("Dispatcher stopped")
	return nil
}

// drain counts the events still queued at shutdown as dropped.
func (d *Dispatcher) drain() {
	for {
		select {
		case <-d.ingress:
			d.metrics.EventDropped("shutdown")
		default:
			d.metrics.SetQueueDepth(0)
			return
		}
	}
}

func (d *Dispatcher) shard(userID int64) int {
	return int(uint64(userID) % uint64(len(d.shards)))
}

func (d *Dispatcher) work(ctx context.Context, id int, events <-chan Event) {
	for ev := range events {
		if ctx.Err() != nil {
			d.metrics.EventDropped("shutdown")
			continue
		}
		d.process(ctx, id, ev)
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, ev Event) {
	start := time.Now()
	resp, err := d.handler.Handle(ctx, ev)
	outcome := Outcome(err)
	d.metrics.ObserveEvent(string(ev.Kind), outcome, time.Since(start))

	fields := []zap.Field{
		zap.String(logger.FieldEventID, ev.ID),
		zap.String(logger.FieldEventKind, string(ev.Kind)),
		zap.Int64(logger.FieldUserID, ev.UserID),
		zap.Int(logger.FieldWorker, worker),
		zap.String("outcome", outcome),
		zap.Duration("took", time.Since(start)),
	}
	switch outcome {
	case "ok", "invalid_input", "not_found":
		d.log.Debug("Event handled", fields...)
	case "forbidden":
		d.log.Info("Event handled", fields...)
	default:
		d.log.Warn("Event handled", append(fields, zap.Error(err))...)
	}

	if resp.Empty() {
		return
	}
	if err := d.sender.Send(ctx, ev.ChatID, resp); err != nil {
		d.log.Error("Failed to send reply",
			zap.String(logger.FieldEventID, ev.ID),
			zap.Int64(logger.FieldChatID, ev.ChatID),
			zap.Error(err),
		)
	}
}
