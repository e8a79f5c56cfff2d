package config

import (
	"strings"
	"time"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	Database     Database     `envPrefix:"DB_"`
	Discord      Discord      `envPrefix:"DISCORD_"`
	Verification Verification `envPrefix:"VERIFY_"`
	Channel      Channel      `envPrefix:"CHANNEL_"`
	Chat         Chat         `envPrefix:"CHAT_"`
	Kafka        Kafka        `envPrefix:"KAFKA_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"` // sqlite | mysql
	URL    string `env:"URL" envDefault:"order-bridge.db"`
	Seed   bool   `env:"SEED" envDefault:"false"`
}

type Discord struct {
	Token             string `env:"TOKEN"`
	GuildID           string `env:"GUILD_ID"`
	AdminRoleID       string `env:"ADMIN_ROLE_ID"`
	OperatorChannelID string `env:"OPERATOR_CHANNEL_ID"`
	TicketCategoryID  string `env:"TICKET_CATEGORY_ID"`
}

type Verification struct {
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
}

type Channel struct {
	DeleteDelay time.Duration `env:"DELETE_DELAY" envDefault:"10s"`
}

type Chat struct {
	MessageInterval time.Duration `env:"MESSAGE_INTERVAL" envDefault:"500ms"`
	Burst           int           `env:"BURST" envDefault:"5"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"order-events"`
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// VerifyURL builds the operator link for a token.
func (c *Config) VerifyURL(tokenID string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/verify/" + tokenID
}
