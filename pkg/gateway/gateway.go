package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/observability"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/parser"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/partner"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/postgres"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/queue"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/sdk"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/spool"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/tcpserver"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/app/pipeline"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// Option customizes the dependencies used by Runtime.
type Option func(*runtimeOverrides)

type runtimeOverrides struct {
	parser        MessageParser
	registry      DeviceRegistry
	store         EventStore
	relay         Relay
	queue         EventQueue
	spool         EventSpool
	deviceSDK     DeviceSDK
	observability Observability
}

// WithParser swaps the payload parser, e.g. for fleets on a custom report
// format.
func WithParser(p MessageParser) Option {
	return func(o *runtimeOverrides) { o.parser = p }
}

// WithRegistry injects a custom device registry backend.
func WithRegistry(r DeviceRegistry) Option {
	return func(o *runtimeOverrides) { o.registry = r }
}

// WithStore injects a custom event store backend.
func WithStore(s EventStore) Option {
	return func(o *runtimeOverrides) { o.store = s }
}

// WithRelay replaces the partner HTTP client so events can be forwarded to
// any downstream system.
func WithRelay(r Relay) Option {
	return func(o *runtimeOverrides) { o.relay = r }
}

// WithQueue swaps the in-memory rescue queue implementation.
func WithQueue(q EventQueue) Option {
	return func(o *runtimeOverrides) { o.queue = q }
}

// WithSpool lets callers bring their own durable spool or reuse an instance.
func WithSpool(s EventSpool) Option {
	return func(o *runtimeOverrides) { o.spool = s }
}

// WithDeviceSDK overrides the configured SDK adapter.
func WithDeviceSDK(s DeviceSDK) Option {
	return func(o *runtimeOverrides) { o.deviceSDK = s }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *runtimeOverrides) { o.observability = obs }
}

// Runtime wires the listener → parser → store → relay pipeline and exposes
// lifecycle hooks for embedding the gateway inside another Go service.
type Runtime struct {
	cfg      *Config
	obs      ports.Observability
	hub      *sdk.Hub
	sdk      ports.DeviceSDK
	ingestor *pipeline.Ingestor
	server   *tcpserver.Server
	relay    *pipeline.RelayLoop
	recovery *pipeline.RecoveryLoop
	queue    ports.EventQueue
	spool    ports.EventSpool
	db       *sql.DB

	cancel      context.CancelFunc
	serverDone  chan error
	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
}

// NewRuntime bootstraps the default adapters: TCP server, vendor SDK,
// Postgres registry and store, partner relay with OAuth2 token cache,
// file spool, Prometheus observability. Any of them can be overridden
// through Option values.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(slog.Default(), nil)
	}

	hub := sdk.NewHub()
	deviceSDK := overrides.deviceSDK
	if deviceSDK == nil {
		switch cfg.SDK.Mode {
		case "noop":
			deviceSDK = sdk.NopSDK{}
		default:
			deviceSDK = sdk.NewVendorSDK(hub)
		}
	}

	msgParser := overrides.parser
	if msgParser == nil {
		msgParser = parser.New()
	}

	var db *sql.DB
	registry := overrides.registry
	store := overrides.store
	if registry == nil || store == nil {
		var err error
		db, err = sql.Open("postgres", cfg.Database.ConnString)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if registry == nil {
			registry = postgres.NewRegistry(db, cfg.Database.DevicesTable)
		}
		if store == nil {
			store = postgres.NewStore(db, cfg.Database.EventsTable)
		}
	}

	rescue := overrides.queue
	if rescue == nil {
		rescue = queue.NewMemQueue(cfg.Rescue.QueueCapacity)
	}

	eventSpool := overrides.spool
	if eventSpool == nil {
		fs, err := spool.NewFileSpool(cfg.Rescue.SpoolDir)
		if err != nil {
			return nil, fmt.Errorf("open spool: %w", err)
		}
		eventSpool = fs
	}

	relay := overrides.relay
	if relay == nil && cfg.Partner.Integration.Enabled {
		tokens, err := partner.NewTokenCache(partner.TokenConfig{
			AuthURL:      cfg.Partner.Auth.URL,
			ClientID:     cfg.Partner.Auth.ClientID,
			ClientSecret: cfg.Partner.Auth.ClientSecret,
			Scope:        cfg.Partner.Auth.Scope,
			Timeout:      time.Duration(cfg.Partner.API.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		relay, err = partner.NewClient(partner.ClientConfig{
			BaseURL:        cfg.Partner.API.BaseURL,
			OriginatorName: cfg.Partner.Integration.OriginatorName,
			PartnerName:    cfg.Partner.Integration.PartnerName,
			Timeout:        time.Duration(cfg.Partner.API.TimeoutSeconds) * time.Second,
			RetryAttempts:  cfg.Partner.API.RetryAttempts,
			RetryBaseDelay: time.Duration(cfg.Partner.API.RetryDelaySeconds) * time.Second,
		}, tokens)
		if err != nil {
			return nil, err
		}
	}

	ingestor := pipeline.NewIngestor(deviceSDK, msgParser, registry, store, rescue, eventSpool, obs)

	server, err := tcpserver.NewServer(tcpserver.Config{
		ListenAddr:    cfg.Server.ListenAddr,
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		ReadTimeout:   cfg.Server.ReadTimeout(),
	}, ingestor.HandleFrame, hub, obs)
	if err != nil {
		return nil, err
	}

	relayPolicy := ports.RelayPolicy{
		Enabled:            relay != nil,
		BatchSize:          cfg.Partner.Integration.BatchSize,
		ProcessingInterval: time.Duration(cfg.Partner.Integration.ProcessingIntervalSeconds) * time.Second,
		RetryAttempts:      cfg.Partner.API.RetryAttempts,
		RetryBaseDelay:     time.Duration(cfg.Partner.API.RetryDelaySeconds) * time.Second,
	}

	rescuePolicy := ports.RescuePolicy{
		QueueCapacity:  cfg.Rescue.QueueCapacity,
		FlushInterval:  cfg.Rescue.FlushInterval(),
		FlushBatchSize: cfg.Partner.Integration.BatchSize,
	}

	rt := &Runtime{
		cfg:      cfg,
		obs:      obs,
		hub:      hub,
		sdk:      deviceSDK,
		ingestor: ingestor,
		server:   server,
		recovery: pipeline.NewRecoveryLoop(store, rescue, eventSpool, rescuePolicy, obs),
		queue:    rescue,
		spool:    eventSpool,
		db:       db,
	}
	if relay != nil {
		rt.relay = pipeline.NewRelayLoop(store, relay, relayPolicy, obs)
	}
	return rt, nil
}

// Start launches the TCP server, the relay and recovery loops, and the
// metrics endpoint. It returns once the listener is bound; call Run to block
// on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.serverDone = make(chan error, 1)
	go func() {
		r.serverDone <- r.server.Serve(ctx)
	}()

	// Wait for the listener so callers can rely on Addr after Start.
	deadline := time.Now().Add(5 * time.Second)
	for r.server.Addr() == nil {
		select {
		case err := <-r.serverDone:
			if err == nil {
				err = fmt.Errorf("server exited before binding")
			}
			return err
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not bind within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if r.relay != nil {
		go r.relay.Run(ctx)
	}
	go r.recovery.Run(ctx)

	r.startMetrics()
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled, then shuts down
// gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Server.ShutdownTimeout())
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Ingest feeds one frame payload into the pipeline without a TCP connection,
// for embedders that receive device reports over another transport.
func (r *Runtime) Ingest(ctx context.Context, payload []byte) (string, error) {
	return r.ingestor.HandleFrame(ctx, payload)
}

// SendCommand pushes a command to a connected device.
func (r *Runtime) SendCommand(ctx context.Context, deviceID string, cmd Command) error {
	return r.sdk.SendDeviceCommand(ctx, deviceID, cmd)
}

// Addr reports the bound TCP listener address once Start has returned.
func (r *Runtime) Addr() net.Addr {
	return r.server.Addr()
}

// Shutdown stops the listener, the loops, the metrics server, and closes the
// database and spool.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.cancel != nil {
		r.cancel()
	}
	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}

	if r.serverDone != nil {
		select {
		case err := <-r.serverDone:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("server drain: %w", ctx.Err()))
		}
	}

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if closer, ok := r.spool.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()

	r.gaugeStopCh = make(chan struct{})
	go r.recordResourceGauges(r.gaugeStopCh, time.Second)
}

func (r *Runtime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge("balise_rescue_queue_length", float64(r.queue.Len()))
			r.obs.SetGauge("balise_spool_size_bytes", float64(r.spool.Stats().SizeBytes))
		}
	}
}
