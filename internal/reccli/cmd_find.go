package reccli

import (
	"context"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

// FindCmd returns the find command.
func FindCmd(cfg config.Config, pk *[]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("find", flag.ContinueOnError),
		Usage: "find [col=value]...",
		Short: "Print record numbers matching criteria",
		Long:  "Matches every column given as col=value by prefix, after trimming both sides. Columns not mentioned match any value.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execFind(o, cfg, *pk, args)
		},
	}
}

func execFind(o *IO, cfg config.Config, pkCols, args []string) error {
	e, err := openEngine(cfg, pkCols)
	if err != nil {
		return err
	}
	defer e.Close()

	criteria, err := parseCriteria(e.Schema(), args)
	if err != nil {
		return err
	}

	matches, err := e.Find(criteria)
	if err != nil {
		return err
	}

	for _, n := range matches {
		o.Println(n)
	}

	return nil
}
