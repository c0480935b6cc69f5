package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async - неблокирующий диспетчер: Publish кладёт событие в буфер, одна
// горутина доставляет его в next. При полном буфере событие отбрасывается
// и вызывается dropped.
type Async struct {
	log     *slog.Logger
	next    Publisher
	ch      chan Event
	dropped func()
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync запускает диспетчер. size <= 0 заменяется на 1.
func NewAsync(log *slog.Logger, next Publisher, size int, dropped func()) *Async {
	if log == nil {
		log = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	if dropped == nil {
		dropped = func() {}
	}

	a := &Async{
		log:     log,
		next:    next,
		ch:      make(chan Event, size),
		dropped: dropped,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()

	return a
}

// Publish не блокируется и не возвращает ошибок доставки.
// После Close события отбрасываются.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped()
		a.log.Warn("event_dropped_after_close", slog.String("type", string(ev.Type)))
		return nil
	}

	select {
	case a.ch <- ev:
	default:
		a.dropped()
		a.log.Warn("event_dropped", slog.String("type", string(ev.Type)))
	}

	return nil
}

func (a *Async) run() {
	defer close(a.done)

	for ev := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, ev); err != nil {
			a.log.Error("event_publish_failed",
				slog.String("type", string(ev.Type)),
				slog.String("err", err.Error()),
			)
		}
		cancel()
	}
}

// Close прекращает приём событий и ждёт доставки буфера или отмены ctx.
// Повторный вызов безопасен.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
