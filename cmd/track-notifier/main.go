package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/PackTrace/config"
	"github.com/BearBump/PackTrace/internal/broker/kafka"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	topic := cfg.Kafka.TrackingObservedTopicName
	if topic == "" {
		topic = "tracking.observed"
	}
	consumerGroup := cfg.PackTrace.NotifierConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-notifier"
	}
	httpAddr := cfg.PackTrace.NotifierHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runNotifier(ctx, notifierOpts{
		httpAddr: httpAddr,
		topic:    topic,
		group:    consumerGroup,
	}, consumer, nil); err != nil && err != context.Canceled {
		panic(err)
	}
}
