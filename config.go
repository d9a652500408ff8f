package tagbench

import (
	"runtime"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/pkg/errors"

	"github.com/rip-create-your-account/tagbench/internal/logger"
)

const ConfigDelimiter = "."

var (
	ErrDataSizeNegative  = errors.New("data size must not be negative")
	ErrQuerySizeNegative = errors.New("query size must not be negative")
	ErrWorkersNegative   = errors.New("workers must not be negative")
	ErrNoTargets         = errors.New("at least one target is required")
	ErrUnknownTarget     = errors.New("unknown target")
	ErrUnknownHasher     = errors.New("unknown hasher")
	ErrUnknownLogLevel   = errors.New("unknown log level")
)

// Config holds every knob of a benchmark run.
type Config struct {
	DataSize  int    `koanf:"dataSize"`
	QuerySize int    `koanf:"querySize"`
	MaxValue  uint64 `koanf:"maxValue"` // inclusive

	// Workers for the parallel phases, 0 means GOMAXPROCS.
	Workers int      `koanf:"workers"`
	Targets []string `koanf:"targets"`

	// ResetResults zeroes the results buffer before every phase. Without it
	// a miss shows whatever an earlier phase wrote into that slot.
	ResetResults bool `koanf:"resetResults"`
	// Presize passes DataSize as a capacity hint to the targets that take one.
	Presize bool `koanf:"presize"`

	Hasher string `koanf:"hasher"`
	// Seed for the data generator, 0 means seed from entropy.
	Seed     uint64 `koanf:"seed"`
	LogLevel string `koanf:"logLevel"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"dataSize":     5_000_000,
		"querySize":    10_000,
		"maxValue":     100_000_000,
		"workers":      0,
		"targets":      []string{KindHashMap.String(), KindTreeMap.String()},
		"resetResults": true,
		"presize":      false,
		"hasher":       "xxh3",
		"seed":         0,
		"logLevel":     "INFO",
	}
}

// LoadConfig layers overrides (flat keys, may be nil) over the defaults and
// validates the result.
func LoadConfig(overrides map[string]interface{}) (Config, error) {
	k := koanf.New(ConfigDelimiter)

	if err := k.Load(confmap.Provider(defaults(), ConfigDelimiter), nil); err != nil {
		return Config{}, errors.Wrap(err, "load defaults")
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, ConfigDelimiter), nil); err != nil {
			return Config{}, errors.Wrap(err, "load overrides")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DataSize < 0 {
		return errors.Wrapf(ErrDataSizeNegative, "dataSize=%d", c.DataSize)
	}
	if c.QuerySize < 0 {
		return errors.Wrapf(ErrQuerySizeNegative, "querySize=%d", c.QuerySize)
	}
	if c.Workers < 0 {
		return errors.Wrapf(ErrWorkersNegative, "workers=%d", c.Workers)
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	if _, err := HasherByName(c.Hasher); err != nil {
		return err
	}
	if _, err := logger.Level(c.LogLevel); err != nil {
		return errors.Wrapf(ErrUnknownLogLevel, "%q", c.LogLevel)
	}
	return nil
}

// Kinds resolves the target labels in run order.
func (c Config) Kinds() ([]Kind, error) {
	if len(c.Targets) == 0 {
		return nil, ErrNoTargets
	}
	kinds := make([]Kind, 0, len(c.Targets))
	for _, label := range c.Targets {
		kind, err := ParseKind(label)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// EffectiveWorkers is the number of goroutines the parallel phases use.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Generator returns the data generator the config asks for.
func (c Config) Generator() Generator {
	if c.Seed == 0 {
		return NewEntropyGenerator()
	}
	return NewGenerator(c.Seed)
}
