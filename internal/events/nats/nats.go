// Package nats публикует события безопасности в NATS на subject "<prefix>.<type>".
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/pribylovaa/go-auth-core/internal/events"
)

// conn - часть *nats.Conn, нужная издателю.
type conn interface {
	Publish(subj string, data []byte) error
}

// Publisher реализует events.Publisher.
type Publisher struct {
	nc     conn
	close  func()
	prefix string
}

// Connect подключается к NATS по url.
func Connect(url, prefix string) (*Publisher, error) {
	const op = "events.nats.Connect"

	nc, err := nats.Connect(url, nats.Name("auth-core"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p := newPublisher(nc, prefix)
	p.close = func() { _ = nc.Drain() }

	return p, nil
}

func newPublisher(nc conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "auth.events"
	}

	return &Publisher{nc: nc, prefix: prefix, close: func() {}}
}

// Subject возвращает subject для типа события.
func (p *Publisher) Subject(t events.Type) string {
	return p.prefix + "." + string(t)
}

// Publish сериализует событие в JSON и отправляет его.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	const op = "events.nats.Publish"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.nc.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close дожидается отправки буфера и закрывает соединение.
func (p *Publisher) Close() {
	p.close()
}
