package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/tudu-lists/project/internal/app/feed"
	"github.com/tudu-lists/project/internal/platform/dbpool"
	"github.com/tudu-lists/project/internal/platform/env"
	"github.com/tudu-lists/project/internal/platform/metrics"
	"github.com/tudu-lists/project/internal/platform/natsutil"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feedAddr := env.String("FEED_ADDR", env.DefaultFeedAddr)
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	repository := feed.NewPostgresRepository(pool)
	if err := waitForPostgres(runCtx, pool, repository, 30*time.Second); err != nil {
		log.Fatal(err)
	}
	service := feed.NewService(repository)
	service.BaseURL = env.String("FEED_BASE_URL", "http://localhost"+feedAddr)

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	sub, err := client.JS.QueueSubscribe("tudu.event.>", "feed-streamer", func(msg *nats.Msg) {
		var streamSeq uint64
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			streamSeq = meta.Sequence.Stream
		}

		handleCtx, cancel := context.WithTimeout(runCtx, 3*time.Second)
		defer cancel()
		if err := service.HandleEvent(handleCtx, msg.Data, streamSeq); err != nil {
			if errors.Is(err, feed.ErrInvalidEventPayload) {
				log.Printf("discarding invalid event payload: %v", err)
				_ = msg.Term()
				return
			}
			log.Printf("event persistence failed: %v", err)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		log.Fatal(err)
	}
	log.Println("Feed streamer consuming subject:", sub.Subject)

	handler := feed.NewHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              feedAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fmt.Printf("Feed streamer listening on %s\n", feedAddr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	_ = sub.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("feed-streamer graceful shutdown failed: %v", err)
	}
}

func waitForPostgres(
	ctx context.Context,
	pool *pgxpool.Pool,
	repository *feed.PostgresRepository,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = repository.EnsureSchema(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
