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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
	"campuslink.app/internal/config"
	"campuslink.app/internal/httpapi"
	"campuslink.app/internal/maintenance"
	"campuslink.app/internal/obs"
	"campuslink.app/internal/store/memory"
	"campuslink.app/internal/store/pg"
	"campuslink.app/internal/store/redis"
	"campuslink.app/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := obs.InitLogger(obs.LogConfig{Level: cfg.Log.Level, Dev: cfg.Log.Dev || cfg.Dev})
	if err != nil {
		_, _ = os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Fatal("campuslink-auth stopped", zap.Error(err))
	}
}

func run(cfg config.Config) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store      auth.Store
		auditStore audit.Store
		probe      httpapi.ReadyProbe
		purger     maintenance.BlacklistPurger
	)
	if cfg.DatabaseURL != "" {
		s, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		store, auditStore, purger, probe.DB = s, s, s, s.DB()
	} else {
		if !cfg.Dev {
			return errors.New("DATABASE_URL is required outside dev")
		}
		log.Warn("DATABASE_URL not set, using in-memory store")
		s := memory.New()
		store, auditStore, purger = s, s, s
	}

	if cfg.RedisURL != "" {
		c, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer c.Close()
		probe.Redis = c
		store = redis.Wrap(store, c)
	}

	events := stream.New()
	auditLog := audit.NewLogger(auditStore, audit.WithPublisher(events))

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Rotate:     cfg.JWT.Rotate,
	}, store.Users(ctx), store.Blacklist(ctx))
	if err != nil {
		return err
	}
	svc, err := auth.NewService(store, tokens, auth.WithAuditor(auditLog))
	if err != nil {
		return err
	}
	if err := svc.SyncGroups(ctx); err != nil {
		return err
	}

	api := httpapi.New(probe, svc, auditLog, events, httpapi.Options{
		Version:        version,
		RateBurst:      cfg.RateLimit.Burst,
		RatePerSecond:  cfg.RateLimit.PerSecond,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		TrustedProxies: cfg.TrustedProxies,
	})
	defer api.Close()

	sched := maintenance.New()
	if err := sched.SchedulePurge(cfg.PurgeSchedule, purger); err != nil {
		return err
	}

	health := httpapi.NewHealthServer(probe)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		health.Run(gctx, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return shutdown(srv, grpcSrv)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

func shutdown(srv *http.Server, grpcSrv *grpc.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		grpcSrv.Stop()
	}
	return srv.Shutdown(ctx)
}
