package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Game     GameConfig     `mapstructure:"game"`
	Session  SessionConfig  `mapstructure:"session"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "gorm" or "sql"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GameConfig carries the readiness policy. The relaxed thresholds used for
// isolated testing are plain config values here, not a runtime environment
// branch.
type GameConfig struct {
	CountdownSeconds int `mapstructure:"countdown_seconds"`
	MinReadyPlayers  int `mapstructure:"min_ready_players"`
	MinReadyTeams    int `mapstructure:"min_ready_teams"`
	RoomCapacity     int `mapstructure:"room_capacity"`
}

type SessionConfig struct {
	ReconnectWindowSeconds int `mapstructure:"reconnect_window_seconds"`
}

func (g GameConfig) Countdown() time.Duration {
	return time.Duration(g.CountdownSeconds) * time.Second
}

func (s SessionConfig) ReconnectWindow() time.Duration {
	return time.Duration(s.ReconnectWindowSeconds) * time.Second
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("database.driver", "gorm")
	viper.SetDefault("game.countdown_seconds", 5)
	viper.SetDefault("game.min_ready_players", 2)
	viper.SetDefault("game.min_ready_teams", 2)
	viper.SetDefault("game.room_capacity", 64)
	viper.SetDefault("session.reconnect_window_seconds", 30)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
