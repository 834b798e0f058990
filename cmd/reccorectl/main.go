// Command reccorectl is a one-shot operator CLI over the record engine.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/calvinalkan/reccore/internal/reccli"
)

func main() {
	env := os.Environ()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := reccli.Run(os.Stdout, os.Stderr, os.Args[1:], env, sigCh)

	os.Exit(exitCode)
}
