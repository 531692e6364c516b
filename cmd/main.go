package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/internal/battle"
	"github.com/weiawesome/wes-io-live/internal/cohost"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/handler"
	"github.com/weiawesome/wes-io-live/internal/hub"
	"github.com/weiawesome/wes-io-live/internal/kafka"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/internal/relay"
	"github.com/weiawesome/wes-io-live/internal/room"
	"github.com/weiawesome/wes-io-live/internal/transport"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "interaction-service"})
	logger := pkglog.L()

	if cfg.User.ID == "" {
		logger.Fatal().Msg("user.id is required")
	}
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Str(pkglog.FieldUserID, cfg.User.ID).Msg("starting interaction-service")

	// Initialize PubSub
	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("connected to pubsub")

	dispatcher := transport.NewHTTPDispatcher(transport.HTTPDispatcherConfig{
		BaseURL: cfg.Dispatcher.BaseURL,
		Token:   cfg.Dispatcher.Token,
		Timeout: cfg.Dispatcher.Timeout,
		Retries: cfg.Dispatcher.Retries,
		Backoff: cfg.Dispatcher.Backoff,
	})
	logger.Info().Str("address", cfg.Dispatcher.BaseURL).Msg("room api dispatcher configured")

	// Initialize hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()
	defer wsHub.Stop()

	sinks := room.Sinks{wsHub}

	// Kafka interaction events are optional
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, interaction events disabled")
		} else {
			defer producer.Close()
			sinks = append(sinks, kafka.NewSink(producer, cfg.User.ID))
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}

	rooms := room.NewManager(room.Deps{
		Dispatcher: dispatcher,
		Channels: func(p loop.Poster) transport.Channel {
			return transport.NewPubSubChannel(ps, cfg.User.ID, p)
		},
		Relay: relay.NewManager(relay.NewPubSubRelayer(ps)),
		Sink:  sinks,
		CoHost: cohost.Config{
			QueueMax:       cfg.Coordination.QueueMax,
			QueueTTL:       cfg.Coordination.QueueTTL,
			TickInterval:   cfg.Coordination.TickInterval,
			AssertProtocol: cfg.Coordination.AssertProtocol,
		},
		Battle: battle.Config{
			AssertProtocol: cfg.Coordination.AssertProtocol,
			RelayTimeout:   cfg.Coordination.RelayTimeout,
		},
		LoopBuffer: cfg.Coordination.LoopBuffer,
	})

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHandler(rooms, cfg.Dispatcher.Timeout).RegisterRoutes(r)
	handler.NewWSHandler(wsHub, cfg.WebSocket).RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("interaction-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down interaction-service")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := rooms.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to leave room")
	}

	logger.Info().Msg("interaction-service stopped")
}
