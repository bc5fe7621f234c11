// Package store persists claims, results and session snapshots behind a
// narrow append-only interface.
//
// Every Put appends a new version of the record; Get returns the latest.
// Kinds marked write-once (validation results) accept exactly one version and
// return sentinel.ErrConflict on a second Put.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind names a record family.
type Kind string

const (
	KindClaim   Kind = "claim"
	KindResult  Kind = "result"
	KindSession Kind = "session"
)

// WriteOnce reports whether records of this kind are immutable.
func (k Kind) WriteOnce() bool {
	return k == KindResult
}

// Entity is anything the store can persist.
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

// Record is one stored version.
type Record struct {
	Kind      Kind
	ID        string
	Version   int
	Body      json.RawMessage
	CreatedAt time.Time
}

// RecordStore is the persistence port used by the session service.
type RecordStore interface {
	Put(ctx context.Context, e Entity) error
	Get(ctx context.Context, kind Kind, id string, dest any) error
	History(ctx context.Context, kind Kind, id string) ([]Record, error)
}

func encode(e Entity) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	return body, nil
}

func decode(kind Kind, id string, body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

func key(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// BatchPutter is implemented by stores that can write several entities atomically.
type BatchPutter interface {
	PutAll(ctx context.Context, entities ...Entity) error
}

// PutAll writes entities atomically when the store supports it and in order
// otherwise.
func PutAll(ctx context.Context, s RecordStore, entities ...Entity) error {
	if bp, ok := s.(BatchPutter); ok {
		return bp.PutAll(ctx, entities...)
	}
	for _, e := range entities {
		if err := s.Put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
