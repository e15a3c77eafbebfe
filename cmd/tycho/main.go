package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/helxplatform/appstore/cmd/tycho/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := commands.New().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
