package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ollama/ollama-usage/cmd"
	"github.com/ollama/ollama-usage/envconfig"
	"github.com/ollama/ollama-usage/logutil"
)

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, logutil.Level(envconfig.Debug(), 0)))

	if err := cmd.LoadDotEnv(); err != nil {
		slog.Warn(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(cmd.NewCLI().ExecuteContext(ctx))
}
