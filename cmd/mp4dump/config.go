package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tetsuo/mp4probe"
	"github.com/tetsuo/mp4probe/track"
)

// Config is the mp4dump configuration. Values come from the defaults, then
// the YAML file given by -config, then flags set on the command line.
type Config struct {
	Format      string    `yaml:"format"`
	Tree        bool      `yaml:"tree"`
	ChunkSize   int       `yaml:"chunkSize"`
	ReadSize    int       `yaml:"readSize"`
	MaxInflight int       `yaml:"maxInflight"`
	MaxHeader   int64     `yaml:"maxHeaderBytes"`
	Log         LogConfig `yaml:"log"`
}

// LogConfig configures diagnostics. With Dir set, logs are also written to
// rotated files in that directory.
type LogConfig struct {
	Level    string `yaml:"level"`
	Dir      string `yaml:"dir"`
	MaxSize  uint64 `yaml:"maxSize"`
	MaxFiles uint64 `yaml:"maxFiles"`
	Layout   string `yaml:"layout"`
}

func defaultConfig() Config {
	return Config{
		Format:      "text",
		ChunkSize:   mp4.DefaultChunkSize,
		ReadSize:    track.DefaultReadSize,
		MaxInflight: mp4.DefaultMaxInflight,
		Log: LogConfig{
			Level:    "warn",
			MaxSize:  1 << 20,
			MaxFiles: 7,
			Layout:   "2006-01-02T15",
		},
	}
}

var errUnknownFormat = errors.New("unknown format")

// loadConfigFile overlays the YAML file at path onto c. Keys missing from
// the file keep their current values.
func loadConfigFile(c *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// parseArgs builds the configuration from the command line and returns the
// remaining arguments.
func parseArgs(fs *flag.FlagSet, args []string) (Config, []string, error) {
	cfg := defaultConfig()
	var (
		configPath  = fs.String("config", "", "YAML config file")
		format      = fs.String("format", cfg.Format, "output format: text, json")
		tree        = fs.Bool("tree", cfg.Tree, "print the box tree instead of the track summary")
		chunkSize   = fs.Int("chunk-size", cfg.ChunkSize, "scanner read size in bytes")
		readSize    = fs.Int("read-size", cfg.ReadSize, "largest single header read in bytes")
		maxInflight = fs.Int("max-inflight", cfg.MaxInflight, "concurrent header reads")
		maxHeader   = fs.Int64("max-header-bytes", cfg.MaxHeader, "reject files with more metadata than this (0: no limit)")
		level       = fs.String("log-level", cfg.Log.Level, "log level: debug, info, warn, error")
		logDir      = fs.String("log-dir", cfg.Log.Dir, "also write logs to rotated files in this directory")
	)
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}

	if *configPath != "" {
		if err := loadConfigFile(&cfg, *configPath); err != nil {
			return cfg, nil, err
		}
	}

	// Flags given on the command line win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Format = *format
		case "tree":
			cfg.Tree = *tree
		case "chunk-size":
			cfg.ChunkSize = *chunkSize
		case "read-size":
			cfg.ReadSize = *readSize
		case "max-inflight":
			cfg.MaxInflight = *maxInflight
		case "max-header-bytes":
			cfg.MaxHeader = *maxHeader
		case "log-level":
			cfg.Log.Level = *level
		case "log-dir":
			cfg.Log.Dir = *logDir
		}
	})

	cfg.Format = strings.ToLower(cfg.Format)
	if _, err := parseFormat(cfg.Format); err != nil {
		return cfg, nil, err
	}
	return cfg, fs.Args(), nil
}

// trackOptions translates the configuration into options for track.Open.
func (c *Config) trackOptions() []track.Option {
	return []track.Option{
		track.WithChunkSize(c.ChunkSize),
		track.WithReadSize(c.ReadSize),
		track.WithMaxInflight(c.MaxInflight),
		track.WithMaxHeaderBytes(c.MaxHeader),
	}
}
