package service

import (
	"context"

	"github.com/rs/zerolog"

	"voting-escrow/internal/escrow"
)

// LogExecutor records transfers instead of moving tokens. It stands in for a
// real token bridge.
type LogExecutor struct {
	logger zerolog.Logger
}

// NewLogExecutor constructs a LogExecutor.
func NewLogExecutor(logger zerolog.Logger) *LogExecutor {
	return &LogExecutor{logger: logger}
}

// Transfer logs the transfer.
func (e *LogExecutor) Transfer(_ context.Context, t escrow.Transfer) error {
	e.logger.Info().Str("to", t.To.Hex()).Str("amount", t.Amount.String()).Msg("transfer")
	return nil
}
