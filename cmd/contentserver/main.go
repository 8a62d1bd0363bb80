package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/redis/go-redis/v9"
	"github.com/ruteri/content-service-backend/cache"
	"github.com/ruteri/content-service-backend/cmd/flags"
	"github.com/ruteri/content-service-backend/common"
	"github.com/ruteri/content-service-backend/config"
	"github.com/ruteri/content-service-backend/httpserver"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/manager"
	"github.com/ruteri/content-service-backend/metrics"
	"github.com/ruteri/content-service-backend/storage"
	badgerstore "github.com/ruteri/content-service-backend/store/badger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "content-server",
		Usage: "Serve collections and items over virtual storage providers",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.DataDirFlag,
			flags.InMemoryFlag,
			flags.BindingsFileFlag,
			flags.CacheRedisAddrFlag,
			flags.LogServiceFlagFn("content-service"),
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			bindingsFile := cCtx.String(flags.BindingsFileFlag.Name)
			bindings, err := config.LoadBindings(bindingsFile)
			if err != nil {
				logger.Error("Failed to load storage bindings", "err", err, "file", bindingsFile)
				return err
			}
			logger.Info("Loaded storage bindings", "count", len(bindings), "types", storage.ProviderTypes())

			inMemory := cCtx.Bool(flags.InMemoryFlag.Name)
			dataDir := cCtx.String(flags.DataDirFlag.Name)
			if !inMemory && dataDir == "" {
				return errors.New("data-dir is required unless in-memory is set")
			}
			backend, err := badgerstore.OpenBackend(dataDir, inMemory, logger)
			if err != nil {
				logger.Error("Failed to open metadata database", "err", err, "dir", dataDir)
				return err
			}
			defer backend.Close()

			cfg := flags.ConfigureServer(cCtx, logger)
			metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			var entries interfaces.CacheEntryStore = badgerstore.NewCacheEntryStore(backend)
			if addr := cCtx.String(flags.CacheRedisAddrFlag.Name); addr != "" {
				client := redis.NewClient(&redis.Options{Addr: addr})
				defer client.Close()

				redisStore := cache.NewRedisEntryStore(client, logger)
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := redisStore.Ping(ctx)
				cancel()
				if err != nil {
					logger.Error("Failed to reach redis path cache", "err", err, "addr", addr)
					return err
				}
				logger.Info("Using redis path cache", "addr", addr)
				entries = redisStore
			}
			pathCache := cache.New(entries, metricsSrv, logger)

			registry := storage.NewProviderRegistry(bindings, pathCache, cleanhttp.DefaultPooledClient(), logger)
			registry.SetObserver(metricsSrv)

			collections := manager.NewCollectionManager(badgerstore.NewMetadataStore(backend), registry, logger)
			server := httpserver.New(cfg, httpserver.NewHandler(collections, logger), metricsSrv)

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
