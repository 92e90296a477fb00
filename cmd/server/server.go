package main

import (
	"context"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/agent"
	"matchcore/internal/broadcast"
	"matchcore/internal/common"
	"matchcore/internal/config"
	"matchcore/internal/engine"
	"matchcore/internal/ingest"
	"matchcore/internal/metrics"
	"matchcore/internal/net"
	"matchcore/internal/sink"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg := config.New()
	reg := prometheus.NewRegistry()
	metr := metrics.New(reg)

	eng := engine.New(common.Equities)
	eng.SetLogBookDepth(cfg.SnapshotDepth)
	srv := net.New(cfg.ListenAddress, cfg.ListenPort, cfg.WorkerPoolSize, eng)
	eng.SetReporter(srv)
	eng.SetMetrics(metr)

	tradeSink := sink.New(cfg.SinkQueueCapacity, sink.NewMemoryWriter(), metr)
	eng.SetSink(tradeSink)

	bcast := broadcast.New(eng, common.Equities, cfg.BroadcastDepth, cfg.BroadcastInterval)

	demo := agent.New(common.Equities, "AAPL", "demo-agent",
		decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(10), 1)
	levels := ingest.New(eng, common.Equities, "AAPL", "level-feed")

	t, ctx := tomb.WithContext(ctx)

	t.Go(func() error {
		srv.Run(ctx)
		return nil
	})
	t.Go(func() error {
		return tradeSink.Run(t)
	})
	t.Go(func() error {
		return bcast.Run(t)
	})
	t.Go(func() error {
		return runLevelFeed(t, levels)
	})
	t.Go(func() error {
		return runDemoAgent(t, eng, demo)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/stream", bcast)
	httpSrv := &http.Server{Addr: ":9002", Handler: mux}
	t.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	t.Go(func() error {
		<-t.Dying()
		return httpSrv.Close()
	})

	log.Info().Int("port", cfg.ListenPort).Msg("matchcore server starting")

	<-ctx.Done()
	t.Kill(nil)
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}

// runLevelFeed stands in for a real level-2 market-data client: it walks a
// ladder of prices around a fixed midpoint and periodically reconciles
// each level's resting quantity through updater, so the book carries
// standing liquidity for the demo agent to cross against rather than
// starting and staying empty.
func runLevelFeed(t *tomb.Tomb, updater *ingest.LevelUpdater) error {
	const (
		rungs    = 3
		midpoint = 100
	)
	step := decimal.NewFromFloat(0.5)
	mid := decimal.NewFromInt(midpoint)
	rng := rand.New(rand.NewSource(7))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			for i := 1; i <= rungs; i++ {
				offset := step.Mul(decimal.NewFromInt(int64(i)))
				qty := decimal.NewFromInt(int64(10 + rng.Intn(40)))

				if err := updater.Apply(common.Buy, mid.Sub(offset), qty); err != nil {
					log.Error().Err(err).Msg("level feed bid update rejected")
				}
				if err := updater.Apply(common.Sell, mid.Add(offset), qty); err != nil {
					log.Error().Err(err).Msg("level feed ask update rejected")
				}
			}
		}
	}
}

// runDemoAgent periodically asks demo for a crossing order against the
// live book and submits whatever it returns, so a freshly started server
// has visible trade flow without needing real participant traffic.
func runDemoAgent(t *tomb.Tomb, eng *engine.Harness, demo *agent.RandomCrossingAgent) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			var order *common.Order
			var ok bool
			err := eng.WithBook(common.Equities, func(book *engine.OrderBook) {
				order, ok = demo.NextOrder(book)
			})
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := eng.PlaceOrder(common.Equities, order); err != nil {
				log.Error().Err(err).Msg("demo agent order rejected")
			}
		}
	}
}
