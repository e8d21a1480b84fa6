package global

import (
	"os"
	"strings"

	"github.com/threadswap/chat-service/tools/decode"

	"github.com/joho/godotenv"
)

// AppConfig is the full service configuration. Values come from the process
// environment (optionally seeded from a .env file); defaults suit local
// development against docker-compose mongo/redis.
type AppConfig struct {
	HTTPAddr string `mapstructure:"CHAT_HTTP_ADDR"`

	MongoURI      string `mapstructure:"CHAT_MONGO_URI"`
	MongoDatabase string `mapstructure:"CHAT_MONGO_DATABASE"`
	MongoPoolSize uint64 `mapstructure:"CHAT_MONGO_POOL_SIZE"`

	RedisAddr     string `mapstructure:"CHAT_REDIS_ADDR"`
	RedisPassword string `mapstructure:"CHAT_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"CHAT_REDIS_DB"`

	// empty disables wake events; polling alone still delivers
	NatsURL string `mapstructure:"CHAT_NATS_URL"`

	JWTSecret string `mapstructure:"CHAT_JWT_SECRET"`
	NodeID    int64  `mapstructure:"CHAT_NODE_ID"`
}

func defaults() map[string]string {
	return map[string]string{
		"CHAT_HTTP_ADDR":       ":8080",
		"CHAT_MONGO_URI":       "mongodb://localhost:27017",
		"CHAT_MONGO_DATABASE":  "threadswap",
		"CHAT_MONGO_POOL_SIZE": "20",
		"CHAT_REDIS_ADDR":      "127.0.0.1:6379",
		"CHAT_REDIS_PASSWORD":  "",
		"CHAT_REDIS_DB":        "0",
		"CHAT_NATS_URL":        "",
		"CHAT_JWT_SECRET":      "",
		"CHAT_NODE_ID":         "1",
	}
}

// LoadConfig reads .env (when present), overlays the real environment on the
// defaults, and decodes the merged map weakly typed, so numeric env strings
// land in their integer fields.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load() // optional file, missing is fine

	merged := make(map[string]any)
	for k, v := range defaults() {
		merged[k] = v
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "CHAT_") {
			continue
		}
		merged[parts[0]] = parts[1]
	}

	return decode.Map[AppConfig](merged)
}
