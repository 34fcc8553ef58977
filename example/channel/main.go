package main

import (
	"context"
	"fmt"
	"log"
	"time"

	fleetsdkapp "github.com/adiarra14/fleetsdkapp-sub001"
)

func main() {
	cfg, err := fleetsdkapp.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, batches, closeBatches := fleetsdkapp.NewChannelRelay("fanout", 32)
	defer closeBatches()

	go fanoutWorker("delivery", batches)

	rt, err := fleetsdkapp.NewRuntime(cfg, fleetsdkapp.WithRelay(relay))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []fleetsdkapp.Event) {
	for batch := range batches {
		fmt.Printf("[%s] forwarding %d events at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
