package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TheusHen/chaosimg/internal/config"
	"github.com/lmittmann/tint"
)

func usage() {
	fmt.Println("Usage: chaosimg <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  encrypt -i <image> -o <envelope>")
	fmt.Println("  decrypt -i <envelope> -o <image> [-hash <sha256>]")
	fmt.Println("  inspect -i <envelope>")
	fmt.Println("Run 'chaosimg <command> -h' for the flags of a command.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "decrypt":
		err = runDecrypt(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the flags shared by every command. Values only override the
// config file when the flag was given explicitly.
type options struct {
	configPath string
	logLevel   string
	iterations int
	a, b       int64
	x0, r      float64
	codec      string
	level      int
	policy     string
	data       int
	parity     int
}

func registerOptions(fs *flag.FlagSet) *options {
	def := config.Default()
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.logLevel, "log-level", def.LogLevel, "log level: debug, info, warn, error")
	fs.IntVar(&o.iterations, "acm-iter", def.ACM.Iterations, "Arnold Cat Map iterations")
	fs.Int64Var(&o.a, "acm-a", def.ACM.A, "Arnold Cat Map parameter a")
	fs.Int64Var(&o.b, "acm-b", def.ACM.B, "Arnold Cat Map parameter b")
	fs.Float64Var(&o.x0, "log-x0", def.Logistic.X0, "logistic map seed in (0, 1)")
	fs.Float64Var(&o.r, "log-r", def.Logistic.R, "logistic map growth rate")
	fs.StringVar(&o.codec, "codec", def.Compression.Codec, "compression codec: zlib, zstd, lz4, lzma")
	fs.IntVar(&o.level, "level", def.Compression.Level, "compression level, 0 for the codec default")
	fs.StringVar(&o.policy, "policy", def.MetadataPolicy, "who wins on parameter conflicts: metadata or caller")
	fs.IntVar(&o.data, "data-shards", 0, "Reed-Solomon data shards, 0 disables parity")
	fs.IntVar(&o.parity, "parity-shards", 0, "Reed-Solomon parity shards")
	return o
}

func (o *options) resolve(fs *flag.FlagSet) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = o.logLevel
		case "acm-iter":
			cfg.ACM.Iterations = o.iterations
		case "acm-a":
			cfg.ACM.A = o.a
		case "acm-b":
			cfg.ACM.B = o.b
		case "log-x0":
			cfg.Logistic.X0 = o.x0
		case "log-r":
			cfg.Logistic.R = o.r
		case "codec":
			cfg.Compression.Codec = o.codec
		case "level":
			cfg.Compression.Level = o.level
		case "policy":
			cfg.MetadataPolicy = o.policy
		case "data-shards":
			cfg.Parity.DataShards = o.data
		case "parity-shards":
			cfg.Parity.ParityShards = o.parity
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	level, _ := cfg.Level()
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	return cfg, logger, nil
}

// parseSize parses WIDTHxHEIGHT.
func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("size %q: dimensions must be positive", s)
	}
	return width, height, nil
}
