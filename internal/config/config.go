package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/domcore/internal/errors"
)

const (
	// DefaultAddr is the default server listen address.
	DefaultAddr = ":8080"

	// DefaultRootID is the default root node id.
	DefaultRootID = 1

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "domcore"
)

// Config is the complete domcore configuration.
type Config struct {
	// Root configures the tree of the default manager.
	Root RootConfig `json:"root" yaml:"root" toml:"root"`

	// Server configures the HTTP server.
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`

	// Snapshot configures the snapshot store.
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot" toml:"snapshot"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log" toml:"log"`

	// Metrics configures Prometheus collectors.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`

	// path stores the file the config was loaded from.
	path string
}

// RootConfig describes the root node of a new manager.
type RootConfig struct {
	ID     uint32  `json:"id" yaml:"id" toml:"id"`
	Width  float64 `json:"width" yaml:"width" toml:"width"`
	Height float64 `json:"height" yaml:"height" toml:"height"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// AllowedOrigins enables CORS and cross-origin render connections.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`

	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout" toml:"read_header_timeout"`
	WriteTimeout      Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// BridgeReadTimeout closes idle render connections. Zero disables it.
	BridgeReadTimeout Duration `json:"bridge_read_timeout,omitempty" yaml:"bridge_read_timeout,omitempty" toml:"bridge_read_timeout,omitempty"`

	// MaxBodyBytes limits JSON request bodies.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty" toml:"max_body_bytes,omitempty"`
}

// SnapshotConfig selects the snapshot store. Bucket selects S3, Dir selects
// the local filesystem. Neither disables export.
type SnapshotConfig struct {
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// Enabled reports whether a snapshot store is configured.
func (s SnapshotConfig) Enabled() bool {
	return s.Bucket != "" || s.Dir != ""
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" toml:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" toml:"format"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Namespace string `json:"namespace" yaml:"namespace" toml:"namespace"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Root: RootConfig{ID: DefaultRootID},
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ReadHeaderTimeout: Duration(5 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			ShutdownTimeout:   Duration(30 * time.Second),
			MaxBodyBytes:      64 * 1024,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Namespace: DefaultNamespace},
	}
}

// applyDefaults fills fields left empty by the file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Root.ID == 0 {
		c.Root.ID = d.Root.ID
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = d.Server.ReadHeaderTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
}

// Load reads the configuration file at path, applies defaults and validates
// the result. Errors are *errors.DomError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New("D001").
				Wrap(err).
				WithSuggestion("Pass an existing file with --config, or omit it to use defaults")
		}
		return nil, errors.New("D001").Wrap(err)
	}

	cfg := &Config{}
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	cfg.path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses data by the extension of path, rejecting unknown keys.
func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if stderrors.Is(err, io.EOF) {
			// Empty file.
			err = nil
		}
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	default:
		return errors.New("D003").
			WithDetail(fmt.Sprintf("Unsupported extension %q. Use .json, .yaml, .yml or .toml.", ext))
	}
	if err == nil {
		return nil
	}

	de := errors.New("D002").Wrap(err)
	if line := errorLine(data, err); line > 0 {
		return de.WithLocation(path, line, 0)
	}
	return de.WithLocationFromError(path, err)
}

// errorLine extracts the 1-based line of a decode error, or 0.
func errorLine(data []byte, err error) int {
	var tomlErr *toml.DecodeError
	if stderrors.As(err, &tomlErr) {
		row, _ := tomlErr.Position()
		return row
	}
	var strictErr *toml.StrictMissingError
	if stderrors.As(err, &strictErr) && len(strictErr.Errors) > 0 {
		row, _ := strictErr.Errors[0].Position()
		return row
	}
	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		offset := min(int(syntaxErr.Offset), len(data))
		return 1 + bytes.Count(data[:offset], []byte("\n"))
	}
	return 0
}

// Save writes the configuration to path in the format given by its extension.
func (c *Config) Save(path string) error {
	data, err := c.Marshal(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Newf(errors.CategoryConfig, "write %s", path).Wrap(err)
	}
	c.path = path
	return nil
}

// Marshal encodes the configuration as json, yaml or toml. ext may carry a
// leading dot.
func (c *Config) Marshal(ext string) ([]byte, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "json":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "toml":
		return toml.Marshal(c)
	default:
		return nil, errors.New("D003").
			WithDetail(fmt.Sprintf("Unsupported format %q. Use json, yaml or toml.", ext))
	}
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// Validate checks the configuration. It returns the first problem found as
// a *errors.DomError.
func (c *Config) Validate() error {
	if c.Root.ID == 0 || c.Root.ID > math.MaxInt32 {
		return errors.New("D004").
			WithSuggestion(fmt.Sprintf("root.id is %d; use a value such as 1", c.Root.ID))
	}
	if !validDimension(c.Root.Width) || !validDimension(c.Root.Height) {
		return errors.New("D005").
			WithSuggestion(fmt.Sprintf("root size is %vx%v; use values such as width: 1280, height: 720", c.Root.Width, c.Root.Height))
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return errors.New("D006").
			Wrap(err).
			WithSuggestion(`Use an address such as ":8080" or "127.0.0.1:8080"`)
	}
	for name, d := range map[string]Duration{
		"read_header_timeout": c.Server.ReadHeaderTimeout,
		"write_timeout":       c.Server.WriteTimeout,
		"shutdown_timeout":    c.Server.ShutdownTimeout,
		"bridge_read_timeout": c.Server.BridgeReadTimeout,
	} {
		if d < 0 {
			return errors.New("D010").
				WithSuggestion(fmt.Sprintf("server.%s is %s", name, d))
		}
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return errors.New("D007").
			WithSuggestion(fmt.Sprintf("log.level is %q; use info", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return errors.New("D008").
			WithSuggestion(fmt.Sprintf("log.format is %q; use text or json", c.Log.Format))
	}
	if c.Snapshot.Bucket != "" && c.Snapshot.Dir != "" {
		return errors.New("D009").
			WithSuggestion("Remove snapshot.dir to use S3, or snapshot.bucket to use local files")
	}
	return nil
}

func validDimension(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	if level, ok := levels[strings.ToLower(l.Level)]; ok {
		return level
	}
	return slog.LevelInfo
}

// NewLogger builds the root logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
