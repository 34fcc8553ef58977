package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	fleetsdkapp "github.com/adiarra14/fleetsdkapp-sub001"
)

func main() {
	cfg, err := fleetsdkapp.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := fleetsdkapp.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("gateway exited: %v", err)
	}
}
