package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"promolink/internal/config"
	"promolink/internal/converter"
	"promolink/internal/dispatcher"
	httpapi "promolink/internal/http"
	"promolink/internal/linkx"
	"promolink/internal/logs"
	"promolink/internal/relay"
	"promolink/internal/sender"
	"promolink/internal/storage"
	"promolink/internal/wa"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WhatsApp relay, the dispatcher and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig(config.NewViper())
	if err != nil {
		return err
	}
	zl, err := logs.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	windows, err := dispatcher.ParseWindows(cfg.DispatchWindows)
	if err != nil {
		return fmt.Errorf("DISPATCH_WINDOWS: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	manager, err := wa.NewManager(ctx, cfg.DBDSN, store, log)
	if err != nil {
		return err
	}
	defer manager.Close()

	var cache converter.Cache = converter.NopCache{}
	if cfg.RedisHost != "" {
		rdb, err := converter.DialRedis(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = converter.NewRedisCache(rdb, "")
		log.Infow("conversion_cache_redis", "host", cfg.RedisHost, "port", cfg.RedisPort)
	}
	conv := converter.New(converter.Options{
		BaseURL:   cfg.ShopeeAPIBaseURL,
		APIKey:    cfg.ShopeeAPIKey,
		Timeout:   cfg.ConvertTimeout,
		Cache:     cache,
		CacheTTL:  cfg.ConversionCacheTTL,
		Extractor: linkx.New(cfg.MarketplaceTokens...),
		Logger:    log,
	})

	rl := relay.New(store, conv, log)
	manager.AddMessageHandler(rl.HandleMessage)

	snd := sender.New(store, manager, log)
	snd.RiskThreshold = cfg.RiskThreshold
	disp := dispatcher.New(store, snd, manager, dispatcher.Options{
		Tick:          cfg.DispatchTick,
		MinDelay:      cfg.DispatchMinDelay,
		MaxDelay:      cfg.DispatchMaxDelay,
		GroupInterval: cfg.DispatchGroupInterval,
		Windows:       windows,
		Location:      loc,
	}, log)

	manager.ConnectAll(ctx)
	disp.Start(ctx)
	defer disp.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		Store:       store,
		WA:          manager,
		Conv:        conv,
		Relay:       rl,
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("http_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
