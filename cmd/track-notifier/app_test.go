package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/BearBump/PackTrace/internal/broker/messages"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	values [][]byte
}

func (c *fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.values {
		if err := handler(nil, v); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleObserved(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	raw, err := json.Marshal(messages.TrackingObserved{
		TrackingNumber: "1Z9999999999999999",
		Carrier:        "UPS",
		Status:         "Delivered",
		IsDelivered:    true,
		ObservedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, handleObserved(log, raw))
	require.Contains(t, buf.String(), "shipment delivered")
	require.Contains(t, buf.String(), "1Z9999999999999999")
}

func TestHandleObserved_malformedIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	// Ошибки не возвращаем: иначе консьюмер остановится на битом сообщении.
	require.NoError(t, handleObserved(log, []byte("{not json")))
	require.Contains(t, buf.String(), "skipping malformed message")
}

func TestRunNotifier_servesAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runNotifier(ctx, notifierOpts{
			httpAddr: "127.0.0.1:0",
			topic:    "t",
			group:    "g",
			onListen: func(addr string) { addrCh <- addr },
		}, &fakeConsumer{}, nil)
	}()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting notifier to stop")
	}
}
