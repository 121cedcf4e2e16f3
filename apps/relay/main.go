package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/api"
	"github.com/mahaj/taskchat/pkg/config"
	"github.com/mahaj/taskchat/pkg/credential"
	"github.com/mahaj/taskchat/pkg/metrics"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/realtime"
	"github.com/mahaj/taskchat/pkg/relay"
)

var (
	// Version is injected via -ldflags "-X main.Version=..."
	Version = "dev"
)

func main() {
	var cfgPaths string
	flag.StringVar(&cfgPaths, "c", "./config.yml", "config file path (supports: a.yml,b.yml)")
	tail := flag.Bool("tail", false, "print messages already on the topic instead of relaying")
	group := flag.String("group", "taskchat-relay-tail", "consumer group for -tail")
	flag.Parse()

	cfg, err := config.Load(cfgPaths)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("relay starting",
		zap.String("version", Version),
		zap.String("api", cfg.API.URL),
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *tail {
		r := relay.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, *group)
		defer r.Close()
		err := relay.Consume(ctx, r, log, func(m model.Message) {
			fmt.Printf("[%s] %s %s: %s\n", m.CreatedAt, m.Route, m.SenderName, m.Content)
		})
		if err != nil {
			log.Error("tail stopped", zap.Error(err))
		}
		return
	}

	metrics.Register()

	tokens, err := credential.Open(cfg.Credential.Store, credential.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		log.Fatal("open credential store failed", zap.Error(err))
	}
	if c, ok := tokens.(io.Closer); ok {
		defer c.Close()
	}

	// Without relay credentials the relay reuses whatever token a client
	// cached in the shared store.
	if cfg.Relay.Email != "" {
		client := api.NewClient(api.Options{BaseURL: cfg.API.URL, Timeout: cfg.API.Timeout, Logger: log}, tokens)
		if _, err := client.Login(ctx, cfg.Relay.Email, cfg.Relay.Password); err != nil {
			log.Fatal("login failed", zap.Error(err))
		}
	}

	fwd := relay.New(relay.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchTimeout), cfg.Relay.QueueSize, log)
	defer fwd.Close()

	conn := realtime.New(realtime.Options{
		URL:              cfg.Realtime.URL,
		Namespace:        cfg.Realtime.Namespace,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		Logger:           log,
	}, tokens)
	fwd.Attach(conn)

	conn.OnConnected(func() {
		for _, pid := range cfg.Relay.Projects {
			if err := conn.JoinProjectRoom(pid); err != nil {
				log.Warn("join project failed", zap.String("project_id", pid), zap.Error(err))
			}
		}
	})
	conn.OnJoinedProject(func(id model.ID) {
		log.Info("joined project", zap.Stringer("project_id", id))
	})
	conn.OnError(func(err error) {
		log.Warn("server error", zap.Error(err))
	})
	// No reconnection: a lost session ends the process and the supervisor
	// restarts it.
	conn.OnDisconnected(func(reason error) {
		if reason != nil {
			log.Error("disconnected", zap.Error(reason))
		}
		stop()
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !conn.IsConnected() {
			http.Error(w, conn.State().String(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := &http.Server{Addr: cfg.Relay.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
			stop()
		}
	}()

	if err := conn.Connect(ctx); err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}

	if err := fwd.Run(ctx); err != nil {
		log.Error("forwarder stopped", zap.Error(err))
	}

	conn.Disconnect()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Info("relay stopped")
}
