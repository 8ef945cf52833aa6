package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection is a typed view over a Firestore collection. Documents are
// (de)serialized through `firestore:` struct tags, so field names in partial
// updates must match the snake_case tag names.
type Collection[T any] struct {
	Ref *firestore.CollectionRef
}

func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.Doc(id)}
}

func (c *Collection[T]) NewDoc() *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.NewDoc()}
}

// Where returns all documents matching a single field filter.
func (c *Collection[T]) Where(ctx context.Context, path, op string, value interface{}) ([]*T, error) {
	iter := c.Ref.Where(path, op, value).Documents(ctx)
	defer iter.Stop()

	var out []*T
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var t T
		if err := snap.DataTo(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, nil
}

// All returns every document in the collection.
func (c *Collection[T]) All(ctx context.Context) ([]*T, error) {
	iter := c.Ref.Documents(ctx)
	defer iter.Stop()

	var out []*T
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var t T
		if err := snap.DataTo(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, nil
}

type DocumentRef[T any] struct {
	Ref *firestore.DocumentRef
}

func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

// Get returns (nil, nil) when the document does not exist.
func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t T
	if err := snap.DataTo(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	_, err := d.Ref.Set(ctx, data)
	return err
}

// Create fails with created=false when the document already exists. Used for
// idempotent fan-out: redelivered messages lose the create race harmlessly.
func (d *DocumentRef[T]) Create(ctx context.Context, data *T) (bool, error) {
	_, err := d.Ref.Create(ctx, data)
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update merges the given fields. Keys must match the firestore tag names;
// no converter runs here because updates are usually partials.
func (d *DocumentRef[T]) Update(ctx context.Context, updates map[string]interface{}) error {
	_, err := d.Ref.Set(ctx, updates, firestore.MergeAll)
	return err
}
