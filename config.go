package thicket

import (
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultSubsteps     = 1
	DefaultWorkers      = 1
	DefaultMeshLeafSize = 64
)

// Config holds the world settings. Files are JSON5, missing fields keep
// their defaults.
type Config struct {
	Gravity      mgl64.Vec3 `json:"gravity"`
	Substeps     int        `json:"substeps"`
	Workers      int        `json:"workers"`
	MeshLeafSize int        `json:"meshLeafSize"`
	Restitution  float64    `json:"restitution"`
	LogLevel     string     `json:"logLevel"`
}

func DefaultConfig() Config {
	return Config{
		Gravity:      mgl64.Vec3{0, -9.81, 0},
		Substeps:     DefaultSubsteps,
		Workers:      DefaultWorkers,
		MeshLeafSize: DefaultMeshLeafSize,
		Restitution:  0.9,
		LogLevel:     "info",
	}
}

// LoadConfig reads a JSON5 file over the defaults and validates the result
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid field
func (c Config) Validate() error {
	var err error
	if c.Substeps < 1 {
		err = multierr.Append(err, errors.Errorf("substeps must be at least 1, got %d", c.Substeps))
	}
	if c.Workers < 1 {
		err = multierr.Append(err, errors.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MeshLeafSize < 1 {
		err = multierr.Append(err, errors.Errorf("meshLeafSize must be at least 1, got %d", c.MeshLeafSize))
	}
	if c.Restitution < 0 || c.Restitution > 1 {
		err = multierr.Append(err, errors.Errorf("restitution must be within [0,1], got %v", c.Restitution))
	}
	if _, levelErr := zapcore.ParseLevel(c.LogLevel); levelErr != nil {
		err = multierr.Append(err, errors.Wrap(levelErr, "logLevel"))
	}

	return err
}

// NewLogger builds a console logger at the configured level
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "logLevel")
	}

	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}.Build()
}
