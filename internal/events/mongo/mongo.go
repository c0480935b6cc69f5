// Package mongo хранит журнал событий безопасности в MongoDB.
// Срок хранения задаёт TTL-индекс по expires_at.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pribylovaa/go-auth-core/internal/events"
)

const (
	eventsCollection = "security_events"
	defaultDBName    = "auth_audit"
	maxListLimit     = 500
)

// Audit - приёмник событий и чтение журнала для администратора.
type Audit struct {
	client    *mongodriver.Client
	coll      *mongodriver.Collection
	retention time.Duration
}

type eventDoc struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"type"`
	UserID     string    `bson:"user_id,omitempty"`
	Email      string    `bson:"email,omitempty"`
	Source     string    `bson:"source,omitempty"`
	Reason     string    `bson:"reason,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri string, retention time.Duration) (*Audit, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo: empty uri")
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	a := &Audit{
		client:    cli,
		coll:      cli.Database(databaseFromURI(uri)).Collection(eventsCollection),
		retention: retention,
	}

	if err := a.ensureIndexes(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	return a, nil
}

// Close отключается от MongoDB.
func (a *Audit) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

// ensureIndexes создаёт индексы журнала:
// - TTL по expires_at (expireAfterSeconds=0 - используется метка из документа);
// - выборка по пользователю: user_id + occurred_at(desc).
func (a *Audit) ensureIndexes(ctx context.Context) error {
	models := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("user_occurred_desc"),
		},
	}

	if _, err := a.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}

	return nil
}

// Publish сохраняет событие. Повторная запись того же ID игнорируется.
func (a *Audit) Publish(ctx context.Context, ev events.Event) error {
	doc := eventDoc{
		ID:         ev.ID.String(),
		Type:       string(ev.Type),
		Email:      ev.Email,
		Source:     ev.Source,
		Reason:     ev.Reason,
		OccurredAt: ev.OccurredAt.UTC(),
		ExpiresAt:  ev.OccurredAt.UTC().Add(a.retention),
	}
	if ev.UserID != uuid.Nil {
		doc.UserID = ev.UserID.String()
	}

	_, err := a.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return nil
		}

		return fmt.Errorf("mongo insert event: %w", err)
	}

	return nil
}

// List возвращает последние события пользователя, новые первыми.
func (a *Audit) List(ctx context.Context, userID uuid.UUID, limit int) ([]events.Event, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := a.coll.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode events: %w", err)
	}

	out := make([]events.Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEvent())
	}

	return out, nil
}

func (d eventDoc) toEvent() events.Event {
	ev := events.Event{
		Type:       events.Type(d.Type),
		Email:      d.Email,
		Source:     d.Source,
		Reason:     d.Reason,
		OccurredAt: d.OccurredAt.UTC(),
	}
	ev.ID, _ = uuid.Parse(d.ID)
	if d.UserID != "" {
		ev.UserID, _ = uuid.Parse(d.UserID)
	}

	return ev
}

// databaseFromURI извлекает имя базы из пути URI; без него - значение по умолчанию.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}

	return defaultDBName
}
