// deskshare - remote desktop sessions over a single TCP connection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deskshare/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "deskshare: %v\n", err)
		cancel()
		os.Exit(cmd.ExitCode(err))
	}
}
