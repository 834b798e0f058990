package reccli

import (
	"context"
	"strconv"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

// UpdateCmd returns the update command.
func UpdateCmd(cfg config.Config, pk *[]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("update", flag.ContinueOnError),
		Usage: "update <n> <col=value>...",
		Short: "Lock, overwrite, and unlock record n",
		Long:  "Acquires the row lock, stages the given columns as an update over the existing row, and commits on unlock. Rejected if the update would change the primary key.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execUpdate(ctx, o, cfg, *pk, args)
		},
	}
}

func execUpdate(ctx context.Context, o *IO, cfg config.Config, pkCols, args []string) error {
	if len(args) == 0 {
		return errRecordNumberRequired
	}

	n, err := strconv.ParseInt(args[0], 10, 64) //nolint:mnd
	if err != nil {
		return err
	}

	e, err := openEngine(cfg, pkCols)
	if err != nil {
		return err
	}
	defer e.Close()

	current, err := e.Read(n)
	if err != nil {
		return err
	}

	changes, err := parseRow(args[1:])
	if err != nil {
		return err
	}

	for col, v := range changes {
		current[col] = v
	}

	if err := e.Lock(ctx, n, caller); err != nil {
		return err
	}

	if err := e.Update(n, caller, current); err != nil {
		_ = e.Unlock(n, caller)

		return err
	}

	if err := e.Unlock(n, caller); err != nil {
		return err
	}

	o.Println("ok")

	return nil
}
