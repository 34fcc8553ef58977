package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/pkg/gateway"
)

func main() {
	cfg, err := gateway.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := gateway.NewCallbackRelay("stdout", func(batch []gateway.Event) error {
		for _, event := range batch {
			fmt.Printf("%s device=%s type=%s fields=%v\n",
				event.OccurredAt.Format(time.RFC3339Nano),
				event.DeviceID,
				event.EventType,
				event.ParsedFields,
			)
		}
		return nil
	})

	rt, err := gateway.NewRuntime(cfg, gateway.WithRelay(relay))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
