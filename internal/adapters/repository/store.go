// Package repository keeps prepared batches between calls.
package repository

import (
	"context"

	"github.com/okian/factorlens/internal/domain/model"
)

// CurrentID resolves to the most recently stored batch.
const CurrentID = "current"

// Info summarises a stored batch.
type Info struct {
	ID      string `json:"batch_id"`
	Records int    `json:"records"`
}

// Store provides access to prepared batches.
type Store interface {
	// Put stores a batch. Storing over an existing ID replaces it and makes it
	// the latest.
	Put(ctx context.Context, b *model.Batch) error

	// Get returns a batch by ID, or the latest for CurrentID.
	// Returns ErrNotFound if there is no such batch.
	Get(ctx context.Context, id string) (*model.Batch, error)

	// Latest returns the most recently stored batch.
	Latest(ctx context.Context) (*model.Batch, error)

	// List returns the stored batches, oldest first.
	List(ctx context.Context) []Info

	// Count returns the number of stored batches.
	Count(ctx context.Context) int
}
