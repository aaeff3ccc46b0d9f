// Command weather-favorites serves the favorites and forecast API and
// offers cache maintenance commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/i474232898/weather-favorites/internal/config"
	"github.com/i474232898/weather-favorites/internal/logger"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	cli := newCLI(func() (*components, error) { return wire(cfg) })
	cli.root.SetArgs(args)
	cli.root.SetOut(stdout)
	cli.root.SetErr(stderr)

	if err := cli.root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}
	return 0
}
