package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	convgrpc "characterchat/backend/conversation/grpc"
	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/di"
	"characterchat/backend/pkg/router"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port, grpcPort string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, chat websocket and gRPC health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			if port != "" {
				cfg.Server.Port = port
			}
			if grpcPort != "" {
				cfg.Server.GRPCPort = grpcPort
			}
			return runServer(cmd.Context(), opts, cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "HTTP port (default $PORT or 8081)")
	cmd.Flags().StringVar(&grpcPort, "grpc-port", "", "gRPC health port (default $GRPC_PORT or 9091)")
	return cmd
}

func runServer(parent context.Context, opts *rootOptions, cfg *config.Config) error {
	log := opts.newLogger(cfg, false)
	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		return err
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			log.LogError(err, "Failed to close container")
		}
	}()

	container.Health.Start(ctx)

	r, err := router.New(ctx, container)
	if err != nil {
		log.LogError(err, "Failed to build router")
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	grpcLis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.LogError(err, "Failed to listen for gRPC", "port", cfg.Server.GRPCPort)
		return err
	}
	grpcServer := convgrpc.NewServer(container.Health, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return grpcServer.Serve(gctx, grpcLis)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.LogError(err, "Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.LogError(err, "Server stopped with error")
		return err
	}

	log.Info("Server exited gracefully")
	return nil
}
