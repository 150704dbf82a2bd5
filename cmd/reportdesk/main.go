package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/reportdesk/internal/intake"
	"github.com/whisper/reportdesk/internal/messaging"
	"github.com/whisper/reportdesk/internal/metrics"
	"github.com/whisper/reportdesk/internal/moddest"
	"github.com/whisper/reportdesk/internal/ratelimit"
	"github.com/whisper/reportdesk/internal/ws"
)

func main() {
	log.Println("Starting report desk...")

	serverConfig := ws.DefaultServerConfig()
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		serverConfig.ListenAddr = v
	}

	metricsAddr := ":9090"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	sessionConfig := intake.DefaultConfig()
	if v := os.Getenv("COLLECT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sessionConfig.CollectWindow = d
		}
	}

	destConfig := moddest.DefaultConfig()
	if v, ok := os.LookupEnv("REPORTS_SUBJECT"); ok {
		// An explicitly empty subject disables delivery; report commands
		// then fail fast with a configuration-error notice.
		destConfig.Subject = v
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	limiter := ratelimit.NewLimiter(rdb)

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Destination resolution happens per report so a config change (or a
	// missing subject) is observed before any private-channel interaction.
	resolve := func() (intake.Destination, error) {
		return moddest.Resolve(destConfig, natsClient)
	}

	dispatcher := ws.NewMessageDispatcher()
	server := ws.NewServer(serverConfig, limiter, dispatcher.Dispatch)

	gateway := ws.NewGateway(server.Connections(), limiter, resolve, sessionConfig)
	gateway.Register(dispatcher)

	// --- Metrics HTTP ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Printf("metrics listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("Report desk running")
	log.Printf("  listen_addr:     %s", serverConfig.ListenAddr)
	log.Printf("  metrics_addr:    %s", metricsAddr)
	log.Printf("  collect_window:  %s", sessionConfig.CollectWindow)
	log.Printf("  reports_subject: %q", destConfig.Subject)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		natsClient.Close()
		rdb.Close()
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
