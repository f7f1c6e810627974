// Command connectome runs cascades, partner queries, identity matches and graph
// exports from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	c := newCLI(os.Stdout, os.Stderr)
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
