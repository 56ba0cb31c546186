package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/kiwi/characters/internal/cli"
	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

var version = "0.1.0-dev"

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand(version).ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
