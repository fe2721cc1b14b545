// Package config resolves the chaosimg CLI settings from built-in defaults,
// an optional YAML file and CHAOSIMG_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/TheusHen/chaosimg/chaosimg/integrity"
	"github.com/TheusHen/chaosimg/chaosimg/pipeline"
	"gopkg.in/yaml.v2"
)

// Config mirrors the YAML file layout.
type Config struct {
	ACM           ACMConfig         `yaml:"acm"`
	Logistic      LogisticConfig    `yaml:"logistic"`
	Compression   CompressionConfig `yaml:"compression"`
	Parity        ParityConfig      `yaml:"parity"`
	Grayscale     bool              `yaml:"grayscale"`
	EmbedMetadata bool              `yaml:"embed_metadata"`
	// MetadataPolicy is "metadata" or "caller".
	MetadataPolicy string `yaml:"metadata_policy"`
	LogLevel       string `yaml:"log_level"`
}

type ACMConfig struct {
	Iterations int   `yaml:"iterations"`
	A          int64 `yaml:"a"`
	B          int64 `yaml:"b"`
}

type LogisticConfig struct {
	X0 float64 `yaml:"x0"`
	R  float64 `yaml:"r"`
}

type CompressionConfig struct {
	Codec string `yaml:"codec"`
	Level int    `yaml:"level"`
}

// ParityConfig enables Reed-Solomon protection of written envelopes when
// both counts are positive.
type ParityConfig struct {
	DataShards   int `yaml:"data_shards"`
	ParityShards int `yaml:"parity_shards"`
}

// Default returns the reference configuration.
func Default() Config {
	p := pipeline.DefaultParameters()
	return Config{
		ACM:            ACMConfig{Iterations: p.ACMIterations, A: p.ACMA, B: p.ACMB},
		Logistic:       LogisticConfig{X0: p.LogisticX0, R: p.LogisticR},
		Compression:    CompressionConfig{Codec: integrity.CodecZlib.String(), Level: integrity.DefaultZlibLevel},
		EmbedMetadata:  true,
		MetadataPolicy: pipeline.PreferMetadata.String(),
		LogLevel:       "info",
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then environment overrides. Keys absent from the file keep their
// defaults; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config %s does not exist", path)
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML onto cfg, leaving fields the document omits untouched.
func Parse(cfg *Config, data []byte) error {
	return yaml.UnmarshalStrict(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if val := strings.TrimSpace(os.Getenv("CHAOSIMG_LOG_LEVEL")); val != "" {
		cfg.LogLevel = val
	}
	if val := strings.TrimSpace(os.Getenv("CHAOSIMG_CODEC")); val != "" {
		cfg.Compression.Codec = val
	}
	if val := strings.TrimSpace(os.Getenv("CHAOSIMG_METADATA_POLICY")); val != "" {
		cfg.MetadataPolicy = val
	}
}

// Validate checks every field that has a restricted value set.
func (c Config) Validate() error {
	var errs []error
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Codec(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Parity.DataShards < 0 || c.Parity.ParityShards < 0 {
		errs = append(errs, fmt.Errorf("config: negative shard count %d+%d", c.Parity.DataShards, c.Parity.ParityShards))
	}
	return errors.Join(errs...)
}

// Params returns the cipher key described by the file.
func (c Config) Params() pipeline.Parameters {
	return pipeline.Parameters{
		ACMIterations: c.ACM.Iterations,
		ACMA:          c.ACM.A,
		ACMB:          c.ACM.B,
		LogisticX0:    c.Logistic.X0,
		LogisticR:     c.Logistic.R,
	}
}

func (c Config) Codec() (integrity.Codec, error) {
	return integrity.ParseCodec(c.Compression.Codec)
}

func (c Config) Policy() (pipeline.MetadataPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(c.MetadataPolicy)) {
	case "", "metadata":
		return pipeline.PreferMetadata, nil
	case "caller":
		return pipeline.PreferCaller, nil
	default:
		return 0, fmt.Errorf("config: unknown metadata policy %q", c.MetadataPolicy)
	}
}

// Level parses LogLevel as one of debug, info, warn or error.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

// Protected reports whether parity is configured.
func (c Config) Protected() bool { return c.Parity.DataShards > 0 && c.Parity.ParityShards > 0 }

// PipelineOptions builds the pipeline options the file describes. Call
// Validate first.
func (c Config) PipelineOptions() []pipeline.Option {
	codec, _ := c.Codec()
	policy, _ := c.Policy()
	return []pipeline.Option{
		pipeline.WithCodec(codec),
		pipeline.WithCompressionLevel(c.Compression.Level),
		pipeline.WithMetadataPolicy(policy),
	}
}
