// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"

	"github.com/taibuivan/yomira-id/pkg/pagination"
)

// Store defines the persistence contract for secure log entries.
//
// Implementations must treat entries as append-only; there is deliberately no
// update or delete operation in this contract.
type Store interface {
	// Append persists a new log entry.
	Append(context context.Context, entry *Entry) error

	// FindByID retrieves a single entry, including its encrypted payload.
	FindByID(context context.Context, id string) (*Entry, error)

	// List returns entries newest-first, optionally filtered by category.
	List(context context.Context, category Category, params pagination.Params) ([]*Entry, int, error)
}
