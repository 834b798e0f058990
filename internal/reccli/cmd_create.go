package reccli

import (
	"context"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

// CreateCmd returns the create command.
func CreateCmd(cfg config.Config, pk *[]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("create", flag.ContinueOnError),
		Usage: "create <col=value>...",
		Short: "Insert a new record, prints its record number",
		Long:  "Insert a new record built from col=value pairs. Fails with a duplicate-key error if its primary key already exists.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execCreate(o, cfg, *pk, args)
		},
	}
}

func execCreate(o *IO, cfg config.Config, pkCols, args []string) error {
	e, err := openEngine(cfg, pkCols)
	if err != nil {
		return err
	}
	defer e.Close()

	row, err := parseRow(args)
	if err != nil {
		return err
	}

	n, err := e.Create(row)
	if err != nil {
		return err
	}

	o.Println(n)

	return nil
}
