package entity

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"testledger/internal/pubsub"
	"testledger/internal/schema"
)

// Notification is published on the engine broker after a commit. Author,
// Comment and OldValues are filled for update events only.
type Notification struct {
	ID        string
	Realm     string
	Keys      map[string]schema.Value
	Time      time.Time
	Author    string
	Comment   string
	OldValues map[string]schema.Value
}

// Txn carries one database transaction through an operation and its
// hooks. Notifications queued during the transaction are published only
// after the commit succeeds.
type Txn struct {
	Tx     *sql.Tx
	Now    time.Time
	queued []queuedEvent
}

type queuedEvent struct {
	eventType pubsub.EventType
	note      Notification
}

func newTxn(tx *sql.Tx, now time.Time) *Txn {
	return &Txn{Tx: tx, Now: now}
}

// Queue schedules a notification for publication after commit.
func (t *Txn) Queue(eventType pubsub.EventType, realm string, keys map[string]schema.Value) {
	t.queue(eventType, Notification{Realm: realm, Keys: keys})
}

// QueueChange is Queue for update events, carrying the author, comment
// and the values the change replaced.
func (t *Txn) QueueChange(realm string, keys map[string]schema.Value, author, comment string, old map[string]schema.Value) {
	t.queue(pubsub.UpdatedEvent, Notification{
		Realm:     realm,
		Keys:      keys,
		Author:    author,
		Comment:   comment,
		OldValues: old,
	})
}

func (t *Txn) queue(eventType pubsub.EventType, note Notification) {
	copied := make(map[string]schema.Value, len(note.Keys))
	for k, v := range note.Keys {
		copied[k] = v
	}
	note.Keys = copied
	note.ID = uuid.NewString()
	note.Time = t.Now
	t.queued = append(t.queued, queuedEvent{eventType: eventType, note: note})
}

func (t *Txn) publish(broker *pubsub.Broker[Notification]) {
	for _, q := range t.queued {
		broker.Publish(q.eventType, q.note)
	}
	t.queued = nil
}
