package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPRelay/global/config"
	"PPRelay/logger"
	mid "PPRelay/middleware"
	"PPRelay/service/chat"
	"PPRelay/service/health"
	"PPRelay/service/natsx"
	"PPRelay/service/storage"
	rds "PPRelay/service/storage/redis"
	"PPRelay/tools/ids"
	"PPRelay/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("RELAY_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		logger.Errorf("init logger: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log.With(zap.String("node", cfg.NodeId))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) ids + registry + observers
	gen := ids.New(ids.NodeIDFromString(cfg.NodeId))
	observers, closeObservers := buildObservers(ctx, cfg, log)
	defer closeObservers()

	router := chat.NewRouter(chat.NewRegistry(),
		chat.WithLogger(log),
		chat.WithObservers(observers...),
	)
	ws := chat.NewServer(router, cfg.WS, gen, log)

	// 2) HTTP engines
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	mids := mid.NewManager().Add(mid.Recovery(log), mid.AccessLog(log))

	r := gin.New()
	mids.Install(r)
	if cfg.HealthAddr() == "" && cfg.Path == "/" {
		// websocket and health share GET /
		r.GET("/", ws.UpgradeOr(health.Handler(cfg.HealthBody)))
		r.HEAD("/", health.Handler(cfg.HealthBody))
	} else {
		r.GET(cfg.Path, ws.HandleWS)
		if cfg.HealthAddr() == "" {
			health.Mount(r, cfg.HealthBody)
		}
	}

	servers := []*http.Server{{Addr: cfg.Addr(), Handler: r}}
	if addr := cfg.HealthAddr(); addr != "" {
		servers = append(servers, &http.Server{Addr: addr, Handler: health.NewEngine(cfg.HealthBody, mids)})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		safe.SafeGo(log, "http "+srv.Addr, func() {
			log.Info("[HTTP] listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		})
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	// 3) graceful shutdown: stop accepting, close clients, drain listeners
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ws.Shutdown(sctx); err != nil {
		log.Warn("websocket shutdown incomplete", zap.Error(err), zap.Int("live", ws.Live()))
	}
	for _, srv := range servers {
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	st := router.Stats()
	log.Info("relay stopped",
		zap.Int64("frames", st.FramesReceived),
		zap.Int64("deliveries", st.Deliveries),
		zap.Int64("registrations", st.Registrations))
}

// buildObservers wires the optional Redis presence mirror and NATS event
// publisher. A backend that cannot be reached is logged and skipped.
func buildObservers(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) ([]chat.Observer, func()) {
	var (
		obs     []chat.Observer
		closers []func()
	)

	if cfg.Redis.Addr != "" {
		rdb, err := rds.NewClient(ctx, rds.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("presence disabled", zap.Error(err))
		} else {
			p := storage.NewPresence(rdb, cfg.NodeId, cfg.Redis.PresenceTTL, log)
			safe.SafeGo(log, "presence refresh", func() { p.Run(ctx) })
			obs = append(obs, p)
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}

	if len(cfg.Nats.Servers) > 0 {
		name := cfg.Nats.Name
		if name == "" {
			name = cfg.NodeId
		}
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: cfg.Nats.Servers, Name: name})
		if err != nil {
			log.Warn("relay events disabled", zap.Error(err))
		} else if pub, err := natsx.NewEventPublisher(nc, cfg.Nats.SubjectPrefix, cfg.NodeId, log); err != nil {
			log.Warn("relay events disabled", zap.Error(err))
			_ = nc.Close()
		} else {
			obs = append(obs, pub)
			closers = append(closers, func() { _ = nc.Close() })
		}
	}

	return obs, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
