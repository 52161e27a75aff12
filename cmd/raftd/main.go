// Command raftd runs a single Raft node as a long-lived service.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoncodec "github.com/raftlabs/raftcore/codec/json"
	"github.com/raftlabs/raftcore/config"
	"github.com/raftlabs/raftcore/metrics"
	boltstorage "github.com/raftlabs/raftcore/storage/bolt"
	"github.com/raftlabs/raftcore/transport/grpcnode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	raft "github.com/raftlabs/raftcore"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "raftd",
		Short: "Run a single Raft consensus node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "raftd.yaml", "path to the node's YAML configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := boltstorage.Open(settings.DataDir + "/raft.db")
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	node := grpcnode.New(settings.NodeID, len(settings.Peers), settings.PeerAddrs())
	lis, err := net.Listen("tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", settings.ListenAddress, err)
	}
	grpcServer := grpc.NewServer()
	node.Serve(grpcServer)

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg, settings.NodeID)

	srv, err := raft.NewServer(settings.RaftConfig(), node, store, jsoncodec.Codec{}, logger)
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", settings.ListenAddress).Msg("serving gRPC")
		return grpcServer.Serve(lis)
	})

	metricsServer := &http.Server{Addr: settings.MetricsAddress, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	g.Go(func() error {
		logger.Info().Str("addr", settings.MetricsAddress).Msg("serving metrics")
		err := metricsServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return pollMetrics(gctx, srv, metricsRegistry)
	})

	go func() {
		<-gctx.Done()
		grpcServer.GracefulStop()
		_ = metricsServer.Shutdown(context.Background())
	}()

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

func pollMetrics(ctx context.Context, srv *raft.Server, reg *metrics.Registry) error {
	for {
		snap, err := srv.ObserveState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		reg.Observe(snap)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}
