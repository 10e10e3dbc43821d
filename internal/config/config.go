// Package config holds the process-wide tunables for the camera ingest
// system. Values are compile-time defaults, overridable through
// environment variables via caarlos0/env with godotenv.autoload wired in
// by the caller (see cmd/camerapipeline-demo).
package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

// Reconnect holds the back-off schedule used between reconnection attempts.
type Reconnect struct {
	BaseSeconds float64       `env:"RECONNECT_BASE_SECONDS" envDefault:"2"`
	MinDelay    time.Duration `env:"RECONNECT_MIN_DELAY" envDefault:"1s"`
	MaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"30s"`
}

// Pacing holds the presentation-pacing and stall thresholds.
type Pacing struct {
	EarlySleepThreshold   time.Duration `env:"PACING_EARLY_SLEEP" envDefault:"50ms"`
	LatenessCatchup       time.Duration `env:"PACING_LATENESS_CATCHUP" envDefault:"200ms"`
	PTSJumpResetThreshold time.Duration `env:"PACING_PTS_JUMP_RESET" envDefault:"1s"`
	StallTimeout          time.Duration `env:"PACING_STALL_TIMEOUT" envDefault:"30s"`
}

// Logging holds the Logger's rotation and level settings.
type Logging struct {
	Level           string `env:"LOG_LEVEL" envDefault:"info"`
	Dir             string `env:"LOG_DIR" envDefault:"./logs"`
	RotateThreshold int64  `env:"LOG_ROTATE_MB" envDefault:"10"` // megabytes
}

// Config is the system-wide tunable set. The caller builds it (Load or
// Default) and passes it to camerapipeline.New; Initialize does not reload it.
type Config struct {
	// MaxCameras sizes the Delivery Pool (see PoolSize). The Registry does not
	// enforce it as a limit on the number of cameras added.
	MaxCameras int `env:"MAX_CAMERAS" envDefault:"128"`
	// PoolSizeMultiplier sizes the Delivery Pool as a multiple of MaxCameras.
	PoolSizeMultiplier int `env:"POOL_SIZE_MULTIPLIER" envDefault:"4"`
	// OpenInputRetryCap bounds the linear back-off between open_input retries.
	OpenInputRetryCap time.Duration `env:"OPEN_INPUT_RETRY_CAP" envDefault:"5s"`
	// StopTimeout bounds how long stop_camera/shutdown wait for a worker to exit.
	StopTimeout time.Duration `env:"STOP_TIMEOUT" envDefault:"3s"`
	// FPSWindow is the measurement window for input/output FPS accounting.
	FPSWindow time.Duration `env:"FPS_WINDOW" envDefault:"5s"`
	// RTSPSocketTimeout is applied to RTSP/TCP reads.
	RTSPSocketTimeout time.Duration `env:"RTSP_SOCKET_TIMEOUT" envDefault:"10s"`

	Reconnect Reconnect
	Pacing    Pacing
	Logging   Logging
}

// PoolSize is the Delivery Pool's fixed slot count: 4x max cameras by default.
func (c *Config) PoolSize() int {
	return c.MaxCameras * c.PoolSizeMultiplier
}

// Load parses Config from the environment, applying the compile-time
// defaults for any variable left unset. Safe to call more than once; each call returns an
// independent Config (mirrors Initialize()'s idempotence requirement, which
// lives in the registry, not here).
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the Config with compile-time defaults applied without
// consulting the environment, used by tests and by callers that configure
// entirely in code.
func Default() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		// env.Parse only fails on malformed struct tags, which is a
		// programmer error caught immediately by any test run.
		panic(err)
	}
	return cfg
}
