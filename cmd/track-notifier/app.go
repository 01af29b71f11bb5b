package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/PackTrace/internal/broker/messages"
	"github.com/go-chi/chi/v5"
)

type notifierOpts struct {
	httpAddr string
	topic    string
	group    string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runNotifier(ctx context.Context, opts notifierOpts, consumer kafkaConsumer, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runNotifierHTTPServer(ctx, opts)
	}()

	consumeErr := make(chan error, 1)
	go func() {
		log.Info("kafka consumer started", "topic", opts.topic, "group", opts.group)
		consumeErr <- consumer.Consume(ctx, func(_key, value []byte) error {
			return handleObserved(log, value)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumeErr:
		return err
	}
}

// handleObserved — единственный "эффект" нотификатора: структурированный лог.
// Битое сообщение не роняет консьюмер, иначе очередь встанет навсегда.
func handleObserved(log *slog.Logger, value []byte) error {
	var m messages.TrackingObserved
	if err := json.Unmarshal(value, &m); err != nil {
		log.Error("skipping malformed message", "err", err)
		return nil
	}

	attrs := []any{
		"trackingNumber", m.TrackingNumber,
		"carrier", m.Carrier,
		"status", m.Status,
		"observedAt", m.ObservedAt,
	}
	if m.UserID != nil {
		attrs = append(attrs, "userId", *m.UserID)
	}

	if m.IsDelivered {
		log.Info("shipment delivered", attrs...)
	} else {
		log.Info("shipment observed", attrs...)
	}
	return nil
}

func runNotifierHTTPServer(ctx context.Context, opts notifierOpts) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("notifier HTTP listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
