// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"match-workers/internal/app"
	"match-workers/internal/batch"
	"match-workers/internal/common/camunda"
	"match-workers/internal/common/config"
	"match-workers/internal/common/database"
	"match-workers/internal/common/logger"
	"match-workers/internal/common/observability"
	"match-workers/internal/common/queue"
	"match-workers/internal/common/validation"
	"match-workers/pkg/registry"

	cd "match-workers/internal/workers/matching/celery-dispatch"
	mcj "match-workers/internal/workers/matching/match-candidates-for-job"
	mjc "match-workers/internal/workers/matching/match-jobs-for-candidate"
)

const (
	serviceName      = "match-workers"
	shutdownTimeout  = 30 * time.Second
	amqpReconnectGap = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog, _ := zap.NewProduction()
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	log, zapLog, err := app.NewLogger(cfg.Logging)
	if err != nil {
		bootLog, _ := zap.NewProduction()
		bootLog.Fatal("logger init failed", zap.Error(err))
	}
	defer zapLog.Sync()

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("worker manager failed", zap.Error(err))
	}
	zapLog.Info("Worker manager stopped gracefully")
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("Starting worker manager...", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(serviceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			log.Warn("observability shutdown failed", map[string]interface{}{"error": err})
		}
	}()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = app.RetryWithBackoff(ctx, log, "PostgreSQL connection", 15, 2*time.Second, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer pg.Close()
	log.Info("PostgreSQL connected successfully", nil)

	// --- Init observers (outcomes, search, notifications) ---
	var (
		observers []batch.Observer
		resources *app.Resources
	)
	err = app.RetryWithBackoff(ctx, log, "Observer backends", 10, 2*time.Second, func() error {
		var err error
		observers, resources, err = app.NewObservers(ctx, cfg, log)
		return err
	})
	if err != nil {
		return err
	}
	defer resources.Close()

	runner, err := app.NewRunner(cfg, pg, log, obs, observers...)
	if err != nil {
		return err
	}

	reg := registry.Default()
	validator, err := validation.NewValidator(reg)
	if err != nil {
		return err
	}

	// --- Zeebe Workers ---
	var zeebe *camunda.Client
	var workers []*camunda.CamundaWorker
	if cfg.Dispatch.Zeebe() {
		err = app.RetryWithBackoff(ctx, log, "Zeebe client initialization", 10, 2*time.Second, func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		})
		if err != nil {
			return err
		}
		defer zeebe.Close()
		log.Info("Zeebe client connected successfully", nil)

		if wc := mcj.LoadConfig(cfg); wc.Enabled {
			if err := wc.Validate(); err != nil {
				return err
			}
			handler := mcj.NewHandler(wc, runner, validator, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
				TaskType:      mcj.TaskType,
				MaxJobsActive: wc.MaxJobsActive,
				Timeout:       wc.Timeout,
				Name:          serviceName,
			}, handler, log))
		}

		if wc := mjc.LoadConfig(cfg); wc.Enabled {
			if err := wc.Validate(); err != nil {
				return err
			}
			handler := mjc.NewHandler(wc, runner, validator, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
				TaskType:      mjc.TaskType,
				MaxJobsActive: wc.MaxJobsActive,
				Timeout:       wc.Timeout,
				Name:          serviceName,
			}, handler, log))
		}
		log.Info("Zeebe workers registered", map[string]interface{}{"count": len(workers)})
	}

	g, gctx := errgroup.WithContext(ctx)

	// --- AMQP Consumer ---
	if amqpCfg := cfg.Dispatch.AMQP; amqpCfg.Enabled {
		consumer := queue.NewConsumer(queue.Options{
			URL:      amqpCfg.URL,
			Queue:    amqpCfg.Queue,
			Workers:  amqpCfg.Workers,
			Prefetch: amqpCfg.Prefetch,
		}, cd.NewDispatcher(reg, validator, runner, log), log)

		g.Go(func() error {
			return consumeForever(gctx, consumer, log)
		})
	}

	// --- Health & Metrics Server ---
	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           newMux(pg, zeebe),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("Health/Metrics server listening", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received, stopping workers...", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, w := range workers {
			w.Stop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// consumeForever reconnects the consumer until ctx is done.
func consumeForever(ctx context.Context, consumer *queue.Consumer, log logger.Logger) error {
	for {
		err := consumer.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("amqp consumer stopped, reconnecting", map[string]interface{}{
			"error":       err,
			"nextRetryIn": amqpReconnectGap.String(),
		})
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(amqpReconnectGap):
		}
	}
}

func newMux(pg *database.PostgresClient, zeebe *camunda.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok"}
		status := http.StatusOK
		if err := pg.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if zeebe != nil {
			checks["zeebe"] = "ok"
			if err := zeebe.HealthCheck(ctx); err != nil {
				checks["zeebe"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		checks["status"] = "ready"
		if status != http.StatusOK {
			checks["status"] = "not ready"
		}
		checks["time"] = time.Now().Format(time.RFC3339)
		writeStatus(w, status, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
