package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// DefaultPath is the settings file used when none is given.
const DefaultPath = "config/default.json"

// Key prefixes routing settings to components.
const (
	SchedulerPrefix = "scheduler:"
	PipelinePrefix  = "pipeline:"
)

// StoreConfig holds the unprefixed store connection settings.
type StoreConfig struct {
	// GraphServer is the graph store location (a SQLite file path).
	GraphServer string
	Username    string
	Password    string
	Encrypted   bool
}

// SchedulerConfig holds "scheduler:" settings.
type SchedulerConfig struct {
	PollInterval time.Duration
	PageSize     int
	BatchSize    int
	ExitWhenDone bool
	SaveBatches  bool
}

// PipelineConfig holds "pipeline:" settings.
type PipelineConfig struct {
	SleepTime    time.Duration
	StatusTime   time.Duration
	ReloadTime   time.Duration
	DrainTimeout time.Duration
	Whitelist    []string
	Blacklist    []string
	Clean        bool
	Replay       bool
	Watch        bool
	DataRoot     string
	LogLevel     string
	MetricsAddr  string
}

// Settings is a bound settings file.
type Settings struct {
	Path      string
	Store     StoreConfig
	Scheduler SchedulerConfig
	Pipeline  PipelineConfig

	// Ignored lists keys that no component binds, sorted.
	Ignored []string
}

// Defaults returns the settings used for keys absent from the file.
func Defaults() Settings {
	return Settings{
		Store: StoreConfig{
			GraphServer: filepath.Join("data", "petal.db"),
		},
		Scheduler: SchedulerConfig{
			PollInterval: 5 * time.Second,
			PageSize:     100,
			BatchSize:    100,
		},
		Pipeline: PipelineConfig{
			SleepTime:    time.Second,
			StatusTime:   30 * time.Second,
			ReloadTime:   30 * time.Second,
			DrainTimeout: 30 * time.Second,
			Watch:        true,
			DataRoot:     "data",
			LogLevel:     "info",
		},
	}
}

// Load reads, validates and binds the settings file at path.
// Every failure is returned as *Error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse validates and binds a settings document. The format is chosen by
// the extension of name: .yaml and .yml are YAML, everything else JSON.
func Parse(name string, data []byte) (*Settings, error) {
	ctx := cuecontext.New()

	doc, err := decode(ctx, name, data)
	if err != nil {
		return nil, &Error{Code: ErrCodeParse, Path: name, Err: err}
	}
	if doc.IncompleteKind() != cue.StructKind {
		return nil, &Error{Code: ErrCodeParse, Path: name, Err: fmt.Errorf("settings must be an object, got %v", doc.IncompleteKind())}
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("settings"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{Code: ErrCodeSchema, Path: name, Err: fmt.Errorf("%s", cueerrors.Details(err, nil))}
	}

	s, err := bind(unified)
	if err != nil {
		return nil, &Error{Code: ErrCodeSchema, Path: name, Err: err}
	}
	s.Path = name

	for _, key := range s.Ignored {
		slog.Warn("ignoring unknown setting", "key", key, "file", name)
	}
	return s, nil
}

func decode(ctx *cue.Context, name string, data []byte) (cue.Value, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cue.Value{}, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		v := ctx.Encode(raw)
		return v, v.Err()
	default:
		expr, err := cuejson.Extract(name, data)
		if err != nil {
			return cue.Value{}, err
		}
		v := ctx.BuildExpr(expr)
		return v, v.Err()
	}
}

// bind maps validated keys onto typed fields. The schema already
// guaranteed each known key has the right kind.
func bind(v cue.Value) (*Settings, error) {
	s := Defaults()

	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	for iter.Next() {
		key := iter.Selector().Unquoted()
		field := iter.Value()

		var known bool
		switch {
		case strings.HasPrefix(key, SchedulerPrefix):
			known, err = bindScheduler(&s.Scheduler, strings.TrimPrefix(key, SchedulerPrefix), field)
		case strings.HasPrefix(key, PipelinePrefix):
			known, err = bindPipeline(&s.Pipeline, strings.TrimPrefix(key, PipelinePrefix), field)
		default:
			known, err = bindStore(&s.Store, key, field)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if !known {
			s.Ignored = append(s.Ignored, key)
		}
	}
	sort.Strings(s.Ignored)
	return &s, nil
}

func bindStore(c *StoreConfig, key string, v cue.Value) (bool, error) {
	var err error
	switch key {
	case "graph_server", "neo4j_server":
		c.GraphServer, err = v.String()
	case "username":
		c.Username, err = v.String()
	case "password":
		c.Password, err = v.String()
	case "encrypted":
		c.Encrypted, err = v.Bool()
	default:
		return false, nil
	}
	return true, err
}

func bindScheduler(c *SchedulerConfig, key string, v cue.Value) (bool, error) {
	var err error
	switch key {
	case "poll_interval":
		c.PollInterval, err = seconds(v)
	case "page_size":
		c.PageSize, err = intValue(v)
	case "batch_size":
		c.BatchSize, err = intValue(v)
	case "exit_when_done":
		c.ExitWhenDone, err = v.Bool()
	case "save_batches":
		c.SaveBatches, err = v.Bool()
	default:
		return false, nil
	}
	return true, err
}

func bindPipeline(c *PipelineConfig, key string, v cue.Value) (bool, error) {
	var err error
	switch key {
	case "sleep_time":
		c.SleepTime, err = seconds(v)
	case "status_time":
		c.StatusTime, err = seconds(v)
	case "reload_time":
		c.ReloadTime, err = seconds(v)
	case "drain_timeout":
		c.DrainTimeout, err = seconds(v)
	case "whitelist":
		c.Whitelist, err = stringList(v)
	case "blacklist":
		c.Blacklist, err = stringList(v)
	case "clean":
		c.Clean, err = v.Bool()
	case "replay":
		c.Replay, err = v.Bool()
	case "watch":
		c.Watch, err = v.Bool()
	case "data_root":
		c.DataRoot, err = v.String()
	case "log_level":
		c.LogLevel, err = v.String()
	case "metrics_addr":
		c.MetricsAddr, err = v.String()
	default:
		return false, nil
	}
	return true, err
}

// seconds converts a numeric setting in seconds to a Duration.
func seconds(v cue.Value) (time.Duration, error) {
	f, err := v.Float64()
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func intValue(v cue.Value) (int, error) {
	n, err := v.Int64()
	return int(n), err
}

func stringList(v cue.Value) ([]string, error) {
	var out []string
	if err := v.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Level returns the slog level for LogLevel.
func (c PipelineConfig) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Dir returns the path of a working directory under DataRoot.
func (c PipelineConfig) Dir(name string) string {
	return filepath.Join(c.DataRoot, name)
}
