package reccli

import (
	"context"
	"errors"
	"strconv"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

var errRecordNumberRequired = errors.New("reccorectl: record number is required")

// ReadCmd returns the read command.
func ReadCmd(cfg config.Config, pk *[]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("read", flag.ContinueOnError),
		Usage: "read <n>",
		Short: "Print the record at position n",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRead(o, cfg, *pk, args)
		},
	}
}

func execRead(o *IO, cfg config.Config, pkCols, args []string) error {
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

	row, err := e.Read(n)
	if err != nil {
		return err
	}

	printRow(o, e, row)

	return nil
}
