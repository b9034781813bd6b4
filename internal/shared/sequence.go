package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Sequencer hands out monotonically increasing values per document prefix.
type Sequencer interface {
	NextValue(ctx context.Context, prefix string) (int64, error)
}

// FormatNumber renders a document number such as JE004 or DH012.
func FormatNumber(prefix string, value int64) string {
	return fmt.Sprintf("%s%03d", prefix, value)
}

// NextNumber draws the next value for prefix and formats it.
func NextNumber(ctx context.Context, seq Sequencer, prefix string) (string, error) {
	value, err := seq.NextValue(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("sequence %s: %w", prefix, err)
	}
	return FormatNumber(prefix, value), nil
}

// PgSequencer draws values from document_sequences inside a transaction.
// The upsert takes a row lock, so concurrent transactions never share a value.
type PgSequencer struct {
	tx pgx.Tx
}

// NewPgSequencer binds a sequencer to tx.
func NewPgSequencer(tx pgx.Tx) *PgSequencer {
	return &PgSequencer{tx: tx}
}

// NextValue implements Sequencer.
func (s *PgSequencer) NextValue(ctx context.Context, prefix string) (int64, error) {
	var value int64
	err := s.tx.QueryRow(ctx, `INSERT INTO document_sequences (prefix, value) VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET value = document_sequences.value + 1
RETURNING value`, prefix).Scan(&value)
	return value, err
}
