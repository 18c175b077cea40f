// Command envelope-relay wires the buffer core to the admin server and
// runs a demo forwarding loop that pops ready envelopes and logs them,
// standing in for the real forwarding pipeline spec.md places out of
// scope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chartly-labs/envbuffer/internal/admin"
	"github.com/chartly-labs/envbuffer/internal/buffer"
	"github.com/chartly-labs/envbuffer/internal/relayconfig"
	"github.com/chartly-labs/envbuffer/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config document")
	flag.Parse()

	cfg, err := relayconfig.Load(*configPath)
	if err != nil {
		return err
	}

	level := telemetry.LevelInfo
	if cfg.LogLevel == "debug" {
		level = telemetry.LevelDebug
	}
	logger := telemetry.New(telemetry.Options{Service: cfg.Service, Level: level})
	meter := telemetry.NopMeter{}

	registry := admin.NewRegistry()
	buffers := make(map[string]*buffer.PolymorphicEnvelopeBuffer, len(cfg.Partitions))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, partition := range cfg.Partitions {
		pb, err := buffer.NewPolymorphicEnvelopeBuffer(partition, partition.Name, logger, meter)
		if err != nil {
			return fmt.Errorf("envelope-relay: build partition %s: %w", partition.Name, err)
		}
		if err := pb.Initialize(ctx); err != nil {
			return fmt.Errorf("envelope-relay: initialize partition %s: %w", partition.Name, err)
		}
		buffers[partition.Name] = pb
		registry.Register(partition.Name, pb)
	}

	server := admin.NewServer(registry, logger)
	httpServer := &http.Server{Addr: cfg.AdminListenAddr, Handler: server}

	go func() {
		logger.Info("admin server listening", map[string]any{"addr": cfg.AdminListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server stopped", map[string]any{"error": err.Error()})
		}
	}()

	go forwardingLoop(ctx, logger, buffers, cfg.DefaultCooldown)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down", nil)
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	for tag, pb := range buffers {
		flushed := pb.Shutdown(shutdownCtx)
		logger.Info("partition flushed", map[string]any{"partition": tag, "flushed_to_disk": flushed})
	}
	return nil
}

// forwardingLoop pops ready envelopes from every partition and logs them.
// It is a placeholder for the real forwarding pipeline, which is out of
// scope for this module; its only job here is to exercise Peek/Pop/MarkSeen
// against a live buffer.
func forwardingLoop(ctx context.Context, logger *telemetry.Logger, buffers map[string]*buffer.PolymorphicEnvelopeBuffer, cooldown time.Duration) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for tag, pb := range buffers {
				drainReady(ctx, logger, tag, pb, cooldown)
			}
		}
	}
}

func drainReady(ctx context.Context, logger *telemetry.Logger, tag string, pb *buffer.PolymorphicEnvelopeBuffer, cooldown time.Duration) {
	for {
		peek, err := pb.Peek(ctx)
		if err != nil {
			logger.Error("peek failed", map[string]any{"partition": tag, "error": err.Error()})
			return
		}
		if peek.Empty || !peek.Ready {
			if !peek.Empty {
				pb.MarkSeen(peek.ProjectKeyPair, cooldown)
			}
			return
		}
		envelope, err := pb.Pop(ctx)
		if err != nil {
			logger.Error("pop failed", map[string]any{"partition": tag, "error": err.Error()})
			return
		}
		logger.Debug("forwarded envelope", map[string]any{
			"partition":   tag,
			"own_key":     string(envelope.OwnProjectKey()),
			"received_at": envelope.ReceivedAt().Format(time.RFC3339Nano),
		})
	}
}
