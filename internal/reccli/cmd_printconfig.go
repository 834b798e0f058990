package reccli

import (
	"context"

	"github.com/calvinalkan/reccore/internal/config"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg config.Config, sources config.Sources) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execPrintConfig(o, cfg, sources)
		},
	}
}

func execPrintConfig(o *IO, cfg config.Config, sources config.Sources) error {
	out, err := config.Format(cfg)
	if err != nil {
		return err
	}

	o.Printf("%s\n", out)
	o.Println()
	o.Println("# sources")

	if sources.Global == "" && sources.Project == "" {
		o.Println("(defaults only)")

		return nil
	}

	if sources.Global != "" {
		o.Println("global_config=" + sources.Global)
	}

	if sources.Project != "" {
		o.Println("project_config=" + sources.Project)
	}

	return nil
}
