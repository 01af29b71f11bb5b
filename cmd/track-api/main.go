package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/PackTrace/config"
	"github.com/BearBump/PackTrace/internal/api/trackhttp"
	"github.com/BearBump/PackTrace/internal/broker/kafka"
	"github.com/BearBump/PackTrace/internal/cache/rediscache"
	"github.com/BearBump/PackTrace/internal/integrations/carrier/sim"
	"github.com/BearBump/PackTrace/internal/services/auth"
	"github.com/BearBump/PackTrace/internal/services/tracking"
	"github.com/BearBump/PackTrace/internal/storage/pgstore"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.PackTrace.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	if cfg.PackTrace.AuthSecret == "" {
		panic("packtrace.auth_secret must be set")
	}
	tokenTTL := time.Duration(cfg.PackTrace.AuthTokenTTLSeconds) * time.Second
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	cacheTTL := time.Duration(cfg.PackTrace.LatestCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	rlPerMin := int64(cfg.PackTrace.CarrierRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}
	topic := cfg.Kafka.TrackingObservedTopicName
	if topic == "" {
		topic = "tracking.observed"
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgstore.New(connString)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	trackings := tracking.New(st, sim.New()).
		WithCache(rc, cacheTTL).
		WithProducer(producer).
		WithRateLimiter(rl, rlPerMin)
	authSvc := auth.New(st, cfg.PackTrace.AuthSecret, tokenTTL)

	handler := trackhttp.New(trackings, authSvc, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runTrackAPI(ctx, trackAPIOpts{httpAddr: httpAddr}, handler); err != nil && err != context.Canceled {
		panic(err)
	}
}
