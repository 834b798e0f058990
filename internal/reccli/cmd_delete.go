package reccli

import (
	"context"
	"strconv"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

// DeleteCmd returns the delete command.
func DeleteCmd(cfg config.Config, pk *[]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage: "delete <n>",
		Short: "Lock, stage a delete, and unlock record n",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execDelete(ctx, o, cfg, *pk, args)
		},
	}
}

func execDelete(ctx context.Context, o *IO, cfg config.Config, pkCols, args []string) error {
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

	if err := e.Lock(ctx, n, caller); err != nil {
		return err
	}

	if err := e.Delete(n, caller); err != nil {
		_ = e.Unlock(n, caller)

		return err
	}

	if err := e.Unlock(n, caller); err != nil {
		return err
	}

	o.Println("ok")

	return nil
}
