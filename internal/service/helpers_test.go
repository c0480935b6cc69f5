package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-auth-core/internal/config"
	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage/memory"
	"github.com/pribylovaa/go-auth-core/mocks"
)

const testPassword = "Abcdef1!"

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "auth-core",
		Audience:        []string{"web"},
		BcryptCost:      4,
	}
}

func testPolicy() models.LockoutPolicy {
	return models.LockoutPolicy{Threshold: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute}
}

// fakeClock - управляемое время для детерминированных сценариев.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// eventSink запоминает опубликованные события.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *eventSink) types() []events.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Type, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func newMockSvc(t *testing.T) (*Service, *mocks.MockStorage) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	return New(st, testCfg(), testPolicy()), st
}

func newMemSvc(t *testing.T) (*Service, *memory.Storage, *fakeClock, *eventSink) {
	t.Helper()
	st := memory.New()
	clock := newFakeClock()
	sink := &eventSink{}

	svc := New(st, testCfg(), testPolicy())
	svc.SetClock(clock.Now)
	svc.SetEvents(sink)

	return svc, st, clock, sink
}

// seedVerified регистрирует пользователя и подтверждает его email.
func seedVerified(t *testing.T, svc *Service, email string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	id, err := svc.RegisterUser(ctx, email, testPassword)
	require.NoError(t, err)
	require.NoError(t, svc.MarkEmailVerified(ctx, id))

	return id
}
