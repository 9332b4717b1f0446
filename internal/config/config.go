package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ProjectDirEnv names the project root when the hook runs.
	ProjectDirEnv = "CLAUDE_PROJECT_DIR"

	// EnvPrefix prefixes every environment override, for example
	// SUBREVIEW_SETTINGS_MAX_REVIEW_CYCLES.
	EnvPrefix = "SUBREVIEW"

	// DefaultRelPath is where the config file lives inside a project.
	DefaultRelPath = ".claude/subreview/config.json"

	defaultOutputDir = ".claude/subreview"
	defaultReviewer  = "devtools/code-reviewer/cli.py"
	defaultLedger    = "ledger.db"
)

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Settings are the review policy knobs.
type Settings struct {
	SkipIfNoFileChanges bool
	MaxReviewCycles     int
}

// Reviewer describes the external reviewer process.
type Reviewer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Log configures the hook's own log file.
type Log struct {
	Level         string
	MaxFiles      int
	MaxFileSizeMB int
}

// Retention bounds the number and age of stored sessions. Zero disables a
// bound.
type Retention struct {
	MaxAge      time.Duration
	MaxSessions int
}

// Enabled reports whether any retention bound is set.
func (r Retention) Enabled() bool {
	return r.MaxAge > 0 || r.MaxSessions > 0
}

// Ledger configures the usage ledger database.
type Ledger struct {
	Enabled bool
	Path    string
}

// Config is the resolved configuration. All paths are absolute.
type Config struct {
	// ProjectDir is the directory relative paths are resolved against.
	ProjectDir string

	// File is the config file that was read, empty when defaults were
	// used.
	File string

	OutputDir      string
	AgentsToReview []string
	Settings       Settings
	Reviewer       Reviewer
	Log            Log
	Retention      Retention
	Ledger         Ledger

	v *viper.Viper
}

// Options controls where configuration is read from.
type Options struct {
	// File overrides the default config path. A named file must exist.
	File string

	// ProjectDir overrides CLAUDE_PROJECT_DIR and the working directory.
	ProjectDir string
}

// Load reads the configuration. A missing default file is not an error;
// every key has a default.
func Load(opts Options) (*Config, error) {
	projectDir, err := resolveProjectDir(opts.ProjectDir)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := opts.File
	explicit := file != ""
	if !explicit {
		file = filepath.Join(projectDir, DefaultRelPath)
	}
	file = resolvePath(projectDir, file)

	v.SetConfigFile(file)
	v.SetConfigType("json")

	switch _, statErr := os.Stat(file); {
	case statErr == nil:
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}

	case errors.Is(statErr, os.ErrNotExist) && !explicit:
		file = ""

	case errors.Is(statErr, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, file)

	default:
		return nil, fmt.Errorf("stat config: %w", statErr)
	}

	return build(v, projectDir, file)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", defaultOutputDir)
	v.SetDefault("agents_to_review", []string{})
	v.SetDefault("settings.skip_if_no_file_changes", true)
	v.SetDefault("settings.max_review_cycles", 3)
	v.SetDefault("reviewer.command", defaultReviewer)
	v.SetDefault("reviewer.args", []string{})
	v.SetDefault("reviewer.timeout", "90s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_files", 3)
	v.SetDefault("log.max_file_size_mb", 10)
	v.SetDefault("retention.max_age_days", 0)
	v.SetDefault("retention.max_sessions", 0)
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "")
}

func build(v *viper.Viper, projectDir, file string) (*Config, error) {
	timeout, err := parseTimeout(v.Get("reviewer.timeout"))
	if err != nil {
		return nil, err
	}

	cycles := v.GetInt("settings.max_review_cycles")
	if cycles < 1 {
		return nil, fmt.Errorf("settings.max_review_cycles must be at "+
			"least 1, got %d", cycles)
	}

	outputDir := resolvePath(projectDir, v.GetString("output_dir"))

	ledgerPath := v.GetString("ledger.path")
	if ledgerPath == "" {
		ledgerPath = defaultLedger
	}

	return &Config{
		ProjectDir:     projectDir,
		File:           file,
		OutputDir:      outputDir,
		AgentsToReview: v.GetStringSlice("agents_to_review"),
		Settings: Settings{
			SkipIfNoFileChanges: v.GetBool(
				"settings.skip_if_no_file_changes",
			),
			MaxReviewCycles: cycles,
		},
		Reviewer: Reviewer{
			Command: resolveCommand(
				projectDir, v.GetString("reviewer.command"),
			),
			Args:    v.GetStringSlice("reviewer.args"),
			Timeout: timeout,
		},
		Log: Log{
			Level:         v.GetString("log.level"),
			MaxFiles:      v.GetInt("log.max_files"),
			MaxFileSizeMB: v.GetInt("log.max_file_size_mb"),
		},
		Retention: Retention{
			MaxAge: time.Duration(v.GetInt("retention.max_age_days")) *
				24 * time.Hour,
			MaxSessions: v.GetInt("retention.max_sessions"),
		},
		Ledger: Ledger{
			Enabled: v.GetBool("ledger.enabled"),
			Path:    resolvePath(outputDir, ledgerPath),
		},
		v: v,
	}, nil
}

// IsReviewable reports whether agents of the given type are reviewed.
func (c *Config) IsReviewable(agentType string) bool {
	return agentType != "" && slices.Contains(c.AgentsToReview, agentType)
}

// MaxReviewCycles is the review ceiling per agent.
func (c *Config) MaxReviewCycles() int {
	return c.Settings.MaxReviewCycles
}

// SessionsDir holds one directory per session.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.OutputDir, "sessions")
}

// Keys returns every known configuration key, sorted.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)

	return keys
}

// Value returns the effective raw value of a key.
func (c *Config) Value(key string) any {
	return c.v.Get(key)
}

// Source reports where the effective value of a key comes from: env,
// file or default.
func (c *Config) Source(key string) string {
	envKey := EnvPrefix + "_" + strings.ToUpper(
		strings.ReplaceAll(key, ".", "_"),
	)
	if _, ok := os.LookupEnv(envKey); ok {
		return "env"
	}
	if c.File != "" && c.v.InConfig(key) {
		return "file"
	}

	return "default"
}

func resolveProjectDir(dir string) (string, error) {
	if dir == "" {
		dir = os.Getenv(ProjectDirEnv)
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve project dir: %w", err)
		}
		dir = wd
	}

	abs, err := filepath.Abs(ExpandHome(dir))
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	return abs, nil
}

// resolvePath makes a path absolute against base.
func resolvePath(base, path string) string {
	path = ExpandHome(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(base, path)
}

// resolveCommand resolves a reviewer command that names a path. Bare
// command names are left for a PATH lookup.
func resolveCommand(projectDir, command string) string {
	if !strings.ContainsRune(command, '/') && !strings.HasPrefix(
		command, "~",
	) {
		return command
	}

	return resolvePath(projectDir, command)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// parseTimeout accepts a duration string ("90s", "2m") or a number of
// seconds.
func parseTimeout(raw any) (time.Duration, error) {
	var (
		d   time.Duration
		err error
	)
	switch t := raw.(type) {
	case string:
		d, err = time.ParseDuration(t)
		if err != nil {
			secs, convErr := strconv.ParseFloat(t, 64)
			if convErr != nil {
				return 0, fmt.Errorf("reviewer.timeout: %w", err)
			}
			d, err = seconds(secs), nil
		}

	case int:
		d = seconds(float64(t))

	case int64:
		d = seconds(float64(t))

	case float64:
		d = seconds(t)

	default:
		return 0, fmt.Errorf("reviewer.timeout: unsupported value %v",
			raw)
	}

	if d <= 0 {
		return 0, fmt.Errorf("reviewer.timeout must be positive, got %v",
			raw)
	}

	return d, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
