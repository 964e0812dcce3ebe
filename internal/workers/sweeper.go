package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"github.com/timesheet-app/timesheet/internal/mnemonic"
)

// SweepInterval is how often expired pending credentials are purged.
const SweepInterval = time.Hour

// MnemonicSweeper removes expired pending mnemonics.
type MnemonicSweeper struct {
	svc    *mnemonic.Service
	logger zerolog.Logger
}

// NewMnemonicSweeper creates the worker.
func NewMnemonicSweeper(svc *mnemonic.Service) *MnemonicSweeper {
	return &MnemonicSweeper{
		svc:    svc,
		logger: log.WithComponent("sweeper"),
	}
}

// Name implements Worker.
func (w *MnemonicSweeper) Name() string { return "sweeper" }

// Interval implements Worker.
func (w *MnemonicSweeper) Interval() time.Duration { return SweepInterval }

// Tick deletes pending phrases past their expiry.
func (w *MnemonicSweeper) Tick(ctx context.Context) error {
	swept, err := w.svc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		metrics.RecordMnemonicsSwept(swept)
		w.logger.Info().
			Str("event", "sweeper.swept").
			Int64("count", swept).
			Msg("expired mnemonics removed")
	}
	return nil
}
