package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BATTLE"

// ConfigFileEnv names an optional configuration file (yaml, json or toml).
const ConfigFileEnv = "BATTLE_CONFIG"

const (
	// DefaultTickHz is the fixed rate of the battle tick loop.
	DefaultTickHz = 30
	// DefaultMaxTicks bounds a headless run; zero runs until the mission ends.
	DefaultMaxTicks = 0

	// DefaultAITimeUnitThreshold marks AI actors at or below it as done.
	DefaultAITimeUnitThreshold = 5
	// DefaultAIActionBound caps think cycles per AI selection.
	DefaultAIActionBound = 2
	// DefaultThrowAttempts bounds throw re-solves.
	DefaultThrowAttempts = 20
	// DefaultMoraleModifier is the neutral faction morale modifier in percent.
	DefaultMoraleModifier = 100
	// DefaultFriendlyFireFloor bounds the divisor of friendly-fire penalties.
	DefaultFriendlyFireFloor = 10

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultReplayDir is where replay bundles are written; empty disables recording.
	DefaultReplayDir = "replays"
	// DefaultReplayMaxBundles bounds how many bundles stay on disk.
	DefaultReplayMaxBundles = 20
	// DefaultReplayMaxAge expires bundles older than a week.
	DefaultReplayMaxAge = 7 * 24 * time.Hour

	// DefaultLedgerDriver selects the ledger database.
	DefaultLedgerDriver = "sqlite"
	// DefaultLedgerDSN is the sqlite database file.
	DefaultLedgerDSN = "battle-ledger.db"

	// DefaultGRPCAddr serves the presentation feed; empty disables it.
	DefaultGRPCAddr = ""
	// DefaultViewerAddr serves the websocket viewer; empty disables it.
	DefaultViewerAddr = ""
	// DefaultPingInterval controls viewer keepalives.
	DefaultPingInterval = 30 * time.Second
	// DefaultStreamRetain is how many envelopes late subscribers can replay.
	DefaultStreamRetain = 1024
)

// Ledger drivers.
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerNone     = "none"
)

// Config captures every runtime tunable of the battle runner.
type Config struct {
	Logging    LoggingConfig
	Simulation SimulationConfig
	Rules      RulesConfig
	Replay     ReplayConfig
	Ledger     LedgerConfig
	Feed       FeedConfig
	// ScenarioPath points at a scenario file; empty loads the built-in skirmish.
	ScenarioPath string
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SimulationConfig drives the tick loop.
type SimulationConfig struct {
	TickHz   int
	MaxTicks int
	// Seed fixes the battle random source; zero seeds from the clock.
	Seed int64
}

// TickInterval converts the tick rate into a period.
func (s SimulationConfig) TickInterval() time.Duration {
	if s.TickHz <= 0 {
		return time.Second / DefaultTickHz
	}
	return time.Second / time.Duration(s.TickHz)
}

// RulesConfig tunes the battle rules.
type RulesConfig struct {
	AITimeUnitThreshold int
	AIActionBound       int
	ThrowAttempts       int
	PlayerMorale        int
	HostileMorale       int
	FriendlyFireFloor   int
	DebugPlay           bool
}

// ReplayConfig locates replay output.
type ReplayConfig struct {
	Dir        string
	MaxBundles int
	MaxAge     time.Duration
}

// LedgerConfig selects the persistence backend.
type LedgerConfig struct {
	Driver string
	DSN    string
	// Resume names a mission whose latest snapshot is restored before the battle starts.
	Resume string
}

// FeedConfig configures the presentation transports.
type FeedConfig struct {
	GRPCAddr       string
	ViewerAddr     string
	AllowedOrigins []string
	PingInterval   time.Duration
	Retain         int
	// Token is the shared secret feed clients must present; empty disables the check.
	Token string
}

var defaults = map[string]any{
	"log.level":                  DefaultLogLevel,
	"log.path":                   "",
	"log.max_size_mb":            DefaultLogMaxSizeMB,
	"log.max_backups":            DefaultLogMaxBackups,
	"log.max_age_days":           DefaultLogMaxAgeDays,
	"log.compress":               DefaultLogCompress,
	"tick_hz":                    DefaultTickHz,
	"max_ticks":                  DefaultMaxTicks,
	"seed":                       0,
	"ai.tu_threshold":            DefaultAITimeUnitThreshold,
	"ai.action_bound":            DefaultAIActionBound,
	"throw_attempts":             DefaultThrowAttempts,
	"morale.player":              DefaultMoraleModifier,
	"morale.hostile":             DefaultMoraleModifier,
	"morale.friendly_fire_floor": DefaultFriendlyFireFloor,
	"debug_play":                 false,
	"replay.dir":                 DefaultReplayDir,
	"replay.max_bundles":         DefaultReplayMaxBundles,
	"replay.max_age":             DefaultReplayMaxAge.String(),
	"ledger.driver":              DefaultLedgerDriver,
	"ledger.dsn":                 DefaultLedgerDSN,
	"ledger.resume":              "",
	"feed.grpc_addr":             DefaultGRPCAddr,
	"feed.viewer_addr":           DefaultViewerAddr,
	"feed.allowed_origins":       "",
	"feed.ping_interval":         DefaultPingInterval.String(),
	"feed.retain":                DefaultStreamRetain,
	"feed.token":                 "",
	"scenario":                   "",
}

// Load reads defaults, the optional BATTLE_CONFIG file and BATTLE_* environment overrides,
// returning every invalid value in a single error.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("config", ConfigFileEnv)
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var p problems
	cfg := &Config{
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(v.GetString("log.level")),
			Path:       strings.TrimSpace(v.GetString("log.path")),
			MaxSizeMB:  p.int(v, "log.max_size_mb", 1),
			MaxBackups: p.int(v, "log.max_backups", 0),
			MaxAgeDays: p.int(v, "log.max_age_days", 0),
			Compress:   p.bool(v, "log.compress"),
		},
		Simulation: SimulationConfig{
			TickHz:   p.int(v, "tick_hz", 1),
			MaxTicks: p.int(v, "max_ticks", 0),
			Seed:     p.int64(v, "seed"),
		},
		Rules: RulesConfig{
			AITimeUnitThreshold: p.int(v, "ai.tu_threshold", 0),
			AIActionBound:       p.int(v, "ai.action_bound", 1),
			ThrowAttempts:       p.int(v, "throw_attempts", 1),
			PlayerMorale:        p.int(v, "morale.player", 1),
			HostileMorale:       p.int(v, "morale.hostile", 1),
			FriendlyFireFloor:   p.int(v, "morale.friendly_fire_floor", 1),
			DebugPlay:           p.bool(v, "debug_play"),
		},
		Replay: ReplayConfig{
			Dir:        strings.TrimSpace(v.GetString("replay.dir")),
			MaxBundles: p.int(v, "replay.max_bundles", 0),
			MaxAge:     p.duration(v, "replay.max_age"),
		},
		Ledger: LedgerConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("ledger.driver"))),
			DSN:    strings.TrimSpace(v.GetString("ledger.dsn")),
			Resume: strings.TrimSpace(v.GetString("ledger.resume")),
		},
		Feed: FeedConfig{
			GRPCAddr:       strings.TrimSpace(v.GetString("feed.grpc_addr")),
			ViewerAddr:     strings.TrimSpace(v.GetString("feed.viewer_addr")),
			AllowedOrigins: parseList(strings.Join(v.GetStringSlice("feed.allowed_origins"), ",")),
			PingInterval:   p.duration(v, "feed.ping_interval"),
			Retain:         p.int(v, "feed.retain", 1),
			Token:          strings.TrimSpace(v.GetString("feed.token")),
		},
		ScenarioPath: strings.TrimSpace(v.GetString("scenario")),
	}

	switch cfg.Ledger.Driver {
	case LedgerSQLite, LedgerPostgres:
		if cfg.Ledger.DSN == "" {
			p.add("%s_LEDGER_DSN must be set for the %s driver", EnvPrefix, cfg.Ledger.Driver)
		}
	case LedgerNone:
		if cfg.Ledger.Resume != "" {
			p.add("%s_LEDGER_RESUME needs a ledger driver", EnvPrefix)
		}
	default:
		p.add("%s_LEDGER_DRIVER must be one of sqlite, postgres, none, got %q", EnvPrefix, cfg.Ledger.Driver)
	}
	if len(p) > 0 {
		return nil, errors.New(strings.Join(p, "; "))
	}
	return cfg, nil
}

// problems accumulates validation failures under their environment names.
type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (p *problems) int(v *viper.Viper, key string, minimum int) int {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := strconv.Atoi(raw)
	if err != nil || value < minimum {
		p.add("%s must be an integer >= %d, got %q", envName(key), minimum, raw)
		return 0
	}
	return value
}

func (p *problems) int64(v *viper.Viper, key string) int64 {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.add("%s must be an integer, got %q", envName(key), raw)
		return 0
	}
	return value
}

func (p *problems) bool(v *viper.Viper, key string) bool {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.add("%s must be a boolean value, got %q", envName(key), raw)
		return false
	}
	return value
}

func (p *problems) duration(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		p.add("%s must be a positive duration, got %q", envName(key), raw)
		return 0
	}
	return value
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
