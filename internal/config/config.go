package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-live/pkg/config"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

type Config struct {
	Server       ServerConfig
	WebSocket    WebSocketConfig
	Dispatcher   DispatcherConfig
	Coordination CoordinationConfig
	User         UserConfig
	PubSub       pubsub.Config
	Kafka        KafkaConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// DispatcherConfig configures the room API the command channel talks to.
type DispatcherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	Backoff time.Duration `mapstructure:"backoff"`
}

type CoordinationConfig struct {
	QueueMax       int           `mapstructure:"queue_max"`
	QueueTTL       time.Duration `mapstructure:"queue_ttl"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	AssertProtocol bool          `mapstructure:"assert_protocol"`
	RelayTimeout   time.Duration `mapstructure:"relay_timeout"`
	LoopBuffer     int           `mapstructure:"loop_buffer"`
}

// UserConfig is the identity this agent acts as.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                  "PORT",
		"user.id":                      "USER_ID",
		"dispatcher.base_url":          "ROOM_HTTP_ADDRESS",
		"dispatcher.token":             "ROOM_API_TOKEN",
		"pubsub.driver":                "PUBSUB_DRIVER",
		"pubsub.redis.address":         "REDIS_ADDRESS",
		"pubsub.redis.password":        "REDIS_PASSWORD",
		"pubsub.kafka.brokers":         "KAFKA_BROKERS",
		"pubsub.kafka.group_id":        "KAFKA_PUBSUB_GROUP_ID",
		"pubsub.nats.url":              "NATS_URL",
		"kafka.enabled":                "KAFKA_EVENTS_ENABLED",
		"kafka.brokers":                "KAFKA_BROKERS",
		"kafka.topic":                  "KAFKA_INTERACTION_TOPIC",
		"coordination.assert_protocol": "ASSERT_PROTOCOL",
		"log.level":                    "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Dispatcher.Timeout = pkgconfig.Duration(v, "dispatcher.timeout", 10*time.Second)
	cfg.Dispatcher.Backoff = pkgconfig.Duration(v, "dispatcher.backoff", 200*time.Millisecond)
	cfg.Coordination.QueueTTL = pkgconfig.Duration(v, "coordination.queue_ttl", 30*time.Second)
	cfg.Coordination.TickInterval = pkgconfig.Duration(v, "coordination.tick_interval", time.Second)
	cfg.Coordination.RelayTimeout = pkgconfig.Duration(v, "coordination.relay_timeout", 5*time.Second)
	cfg.PubSub.NATS.ReconnectWait = pkgconfig.Duration(v, "pubsub.nats.reconnect_wait", 2*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("dispatcher.base_url", "http://localhost:8083")
	v.SetDefault("dispatcher.timeout", "10s")
	v.SetDefault("dispatcher.retries", 2)
	v.SetDefault("dispatcher.backoff", "200ms")
	v.SetDefault("coordination.queue_max", 10)
	v.SetDefault("coordination.queue_ttl", "30s")
	v.SetDefault("coordination.tick_interval", "1s")
	v.SetDefault("coordination.assert_protocol", false)
	v.SetDefault("coordination.relay_timeout", "5s")
	v.SetDefault("coordination.loop_buffer", 256)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "interaction-service")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("pubsub.nats.url", "nats://localhost:4222")
	v.SetDefault("pubsub.nats.name", "interaction-service")
	v.SetDefault("pubsub.nats.max_reconnects", -1)
	v.SetDefault("pubsub.nats.reconnect_wait", "2s")
	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "interaction-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
