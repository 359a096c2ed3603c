package database

import (
	"context"
	"time"
)

// Standard timeout durations for database operations
const (
	// DefaultQueryTimeout is the timeout for read queries
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout is the timeout for write operations
	DefaultWriteTimeout = 10 * time.Second

	// DefaultTxTimeout is the timeout for multi-statement transactions
	DefaultTxTimeout = 15 * time.Second
)

// QueryContext creates a context with DefaultQueryTimeout.
// Use this for SELECT queries and read operations.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
// Use this for INSERT, UPDATE, DELETE operations.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// TxContext creates a context with DefaultTxTimeout.
// Use this for transactions that compose several conditional writes.
func TxContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTxTimeout)
}
