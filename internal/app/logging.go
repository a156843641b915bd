package app

import (
	"context"
	"io"

	"github.com/dshills/conductor/internal/config"
	"github.com/dshills/conductor/internal/telemetry"
)

// NewLogger returns a clue logger writing to w, formatted and filtered per
// lc. Calls with contexts that carry no clue logger of their own write
// through the one prepared here.
func NewLogger(ctx context.Context, lc config.LoggingConfig, w io.Writer) (telemetry.Logger, error) {
	level, err := telemetry.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	base := telemetry.NewLogContext(ctx, lc.Format, level == telemetry.LevelDebug, w)
	return telemetry.NewBoundLogger(base, level, telemetry.NewClueLogger()), nil
}
