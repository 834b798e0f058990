package reccli

import (
	"context"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

// StatsCmd returns the stats command.
func StatsCmd(cfg config.Config, pk *[]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("stats", flag.ContinueOnError),
		Usage: "stats",
		Short: "Print live record count and lock-cell occupancy",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execStats(o, cfg, *pk)
		},
	}
}

func execStats(o *IO, cfg config.Config, pkCols []string) error {
	e, err := openEngine(cfg, pkCols)
	if err != nil {
		return err
	}
	defer e.Close()

	s := e.Stats()

	o.Printf("live_records=%d\n", s.LiveRecords)
	o.Printf("lock_cells=%d\n", s.LockCells)
	o.Printf("occupied_cells=%d\n", s.OccupiedCells)

	return nil
}
