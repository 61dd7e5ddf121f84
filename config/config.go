package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const FileName = "showdown.cfg.json"

type ServerConfig struct {
	URL               string        `mapstructure:"url"`
	EventBuffer       int           `mapstructure:"eventBuffer"`
	SendRate          float64       `mapstructure:"sendRate"`
	SendBurst         int           `mapstructure:"sendBurst"`
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`
	ReconnectAttempts int           `mapstructure:"reconnectAttempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnectBackoff"`
}

type BattleConfig struct {
	Room     string   `mapstructure:"room"`
	Commands []string `mapstructure:"commands"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type UIConfig struct {
	Mode string `mapstructure:"mode"`
}

type SSEConfig struct {
	Addr string `mapstructure:"addr"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type DataConfig struct {
	Pokedex string `mapstructure:"pokedex"`
	Moves   string `mapstructure:"moves"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Battle  BattleConfig  `mapstructure:"battle"`
	Log     LogConfig     `mapstructure:"log"`
	UI      UIConfig      `mapstructure:"ui"`
	SSE     SSEConfig     `mapstructure:"sse"`
	History HistoryConfig `mapstructure:"history"`
	Data    DataConfig    `mapstructure:"data"`
}

// UI modes.
const (
	ModeTUI = "tui"
	ModeLog = "log"
	ModeSSE = "sse"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "wss://sim.psim.us/showdown/websocket")
	v.SetDefault("server.eventBuffer", 64)
	v.SetDefault("server.sendRate", 5.0)
	v.SetDefault("server.sendBurst", 3)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.reconnectAttempts", 3)
	v.SetDefault("server.reconnectBackoff", 2*time.Second)

	v.SetDefault("battle.room", "")
	v.SetDefault("battle.commands", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("ui.mode", ModeTUI)
	v.SetDefault("sse.addr", ":42069")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "battles.db")

	v.SetDefault("data.pokedex", "data/pokedex.json")
	v.SetDefault("data.moves", "data/moves.json")
}

// Flags registers the command-line overrides Load understands.
func Flags(fs *pflag.FlagSet) {
	fs.String("server.url", "", "battle server websocket URL")
	fs.String("battle.room", "", "battle room to join, e.g. gen9ou-123456")
	fs.String("log.level", "", "log level (debug, info, warn, error)")
	fs.String("log.file", "", "also write logs to this file")
	fs.String("ui.mode", "", "presentation: tui, log or sse")
	fs.String("sse.addr", "", "listen address for the sse bridge")
	fs.Bool("history.enabled", false, "record battle events to sqlite")
	fs.String("history.path", "", "sqlite file for battle history")
}

// Load layers defaults, the optional JSON file in configDir, SHOWDOWN_*
// environment variables and any flags that were set explicitly.
func Load(configDir string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("json")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SHOWDOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.Visit(func(f *pflag.Flag) {
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("binding flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	switch cfg.UI.Mode {
	case ModeTUI, ModeLog, ModeSSE:
	default:
		return Config{}, fmt.Errorf("unknown ui.mode %q", cfg.UI.Mode)
	}
	return cfg, nil
}
