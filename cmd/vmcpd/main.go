// Package main is the entry point for vmcpd, the virtual MCP aggregator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vmcpio/vmcpd/cmd/vmcpd/app"
	"github.com/vmcpio/vmcpd/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("vmcpd: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
