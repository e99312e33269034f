// hotswapd serves a hash engine behind the migration controller and exposes
// the control plane over gRPC.
//
// Usage:
//
//	hotswapd [--config hotswap.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chimera-pool/chimera-pool-core/internal/adminrpc"
	"github.com/chimera-pool/chimera-pool-core/internal/config"
	"github.com/chimera-pool/chimera-pool-core/internal/driver"
	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/journal"
	"github.com/chimera-pool/chimera-pool-core/internal/loadgen"
	"github.com/chimera-pool/chimera-pool-core/internal/logging"
	"github.com/chimera-pool/chimera-pool-core/internal/migration"
	"github.com/chimera-pool/chimera-pool-core/internal/router"
	"github.com/chimera-pool/chimera-pool-core/internal/telemetry"
	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

// #region main
func main() {
	cfgPath := flag.String("config", envOr("HOTSWAP_CONFIG", ""), "path to YAML or JSON config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.Format, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("hotswapd exited", "error", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run
func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New("hotswapd")
	reg := engine.DefaultRegistry()

	active, err := reg.Get(cfg.Engine.Active)
	if err != nil {
		return fmt.Errorf("active engine: %w", err)
	}

	var sampler router.Sampler = router.RandomSampler{}
	if cfg.Router.Sampler == "hash" {
		sampler = router.HashSampler{}
	}
	opts := []migration.Option{
		migration.WithLogger(logging.New("migration")),
		migration.WithValidator(validation.New(cfg.Validation.Pipeline(), logging.New("validation"))),
		migration.WithSampler(sampler),
		migration.WithTracer(telemetry.NewTracer(logging.New("tracing"), cfg.Telemetry.TracingEnabled)),
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		if prev, err := j.CurrentActive(ctx); err == nil && prev != engine.Identity(active) {
			logger.Warn("journal records a different active engine; starting from config",
				"journal", prev, "config", engine.Identity(active))
		}
		opts = append(opts, migration.WithEventSink(j))
	}

	ctrl, err := migration.New(active, cfg.Migration, opts...)
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv := grpc.NewServer()
	adminrpc.Register(srv, adminrpc.NewServer(ctrl, reg, hs, logging.New("adminrpc")))
	healthpb.RegisterHealthServer(srv, hs)

	lis, err := net.Listen("tcp", cfg.Admin.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Admin.ListenAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("admin listening", "addr", lis.Addr().String())
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
		return nil
	})

	if cfg.Admin.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintln(w, ctrl.Status().State)
		})
		hsrv := &http.Server{Addr: cfg.Admin.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Admin.MetricsAddr)
			if err := hsrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return hsrv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Driver.Enabled {
		d := driver.New(ctrl, cfg.Driver.Interval, logging.New("driver"))
		g.Go(func() error {
			if err := d.Watch(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.Load.Enabled {
		g.Go(func() error {
			res, err := loadgen.Run(gctx, ctrl, loadgen.Config{
				Workers:     cfg.Load.Workers,
				RatePerSec:  cfg.Load.RatePerSec,
				PayloadSize: 80,
			})
			logger.Info("load generator stopped", "sent", res.Sent, "failed", res.Failed, "elapsed", res.Elapsed)
			return err
		})
	}

	logger.Info("hotswapd ready", "active", engine.Identity(active), "engines", reg.List())
	return g.Wait()
}

// #endregion run

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
