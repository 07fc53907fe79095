// Package config loads pkgsynth's ambient configuration: the on-disk
// layout of a configuration directory (state database, repositories
// directory, checkout temporaries, logs) plus the behavior flags of
// the CLI surface.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/ini.v1"
)

// Config holds the resolved configuration for one configuration
// directory. Every path defaults relative to ConfigDir unless the ini
// file or a CLI flag overrides it.
type Config struct {
	// ConfigDir is the configuration directory a state database, a
	// repositories directory, and logs live under.
	ConfigDir string

	// RepositoriesDir holds one subdirectory per repository-state
	// identifier (source.RepositoryState).
	RepositoriesDir string

	// CheckoutRoot is where checked-out package source roots are
	// materialized (--checkout-root); it must live on the same
	// filesystem as RepositoriesDir so checkout-cache restores can use
	// rename(2) rather than a copy.
	CheckoutRoot string

	// LogsDir holds the rotating diagnostics log and one trace log per
	// package checked out by pkg-checkout.
	LogsDir string

	// FetchTimeout bounds a single fetch_repository call, in seconds
	// (--fetch-timeout).
	FetchTimeout int

	// MaxWorkersForFetch bounds the worker pool the external fetch
	// layer uses to fan out concurrent repository fetches; it has no
	// bearing on the single-threaded collector core.
	MaxWorkersForFetch int

	// Behavior flags, one per CLI flag.
	Upgrade       bool // --upgrade|-u
	Patch         bool // --patch
	Deorphan      bool // --deorphan
	Recursive     bool // --recursive|-r
	ConfigureOnly bool // --configure-only
	KeepOut       bool // --keep-out
	Disfigure     bool // --disfigure
	CheckoutPurge bool // --checkout-purge
	Yes           bool // --yes|-y
	Progress      bool // --progress (false selects the plain fallback, --no-progress)
	Verbose       bool // --verbose|-v (echo planner diagnostics to stdout)

	// NoPrivateConfigExitCode is the exit code to use instead of
	// auto-creating a private host/build-system configuration
	// (--no-private-config <exit_code>); 0 means "not set", in which
	// case auto-creation proceeds normally.
	NoPrivateConfigExitCode int

	// ConfigLinks records explicit dependency-configuration links from
	// the ini file's [config-links] section and repeated
	// --config <dependency>=<value> flags.
	ConfigLinks map[string]string
}

// defaultConfigDirs are searched, in order, when no --config directory
// is given on the command line.
var defaultConfigDirs = []string{
	"/etc/pkgsynth",
	"/usr/local/etc/pkgsynth",
}

// LoadConfig loads configuration from configDir's pkgsynth.ini, falling
// back through defaultConfigDirs when configDir is empty, and layering
// package defaults underneath whatever the ini file sets.
func LoadConfig(configDir string) (*Config, error) {
	cfg := &Config{
		FetchTimeout:       60,
		MaxWorkersForFetch: runtime.NumCPU(),
		Progress:           true,
		ConfigLinks:        make(map[string]string),
	}
	if cfg.MaxWorkersForFetch < 1 {
		cfg.MaxWorkersForFetch = 1
	}

	if configDir == "" {
		configDir = defaultConfigDirs[0]
		for _, dir := range defaultConfigDirs {
			if _, err := os.Stat(dir); err == nil {
				configDir = dir
				break
			}
		}
	}
	cfg.ConfigDir = configDir

	iniPath := filepath.Join(configDir, "pkgsynth.ini")
	if _, err := os.Stat(iniPath); err == nil {
		if err := cfg.loadINI(iniPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", iniPath, err)
		}
	}

	if cfg.RepositoriesDir == "" {
		cfg.RepositoriesDir = filepath.Join(cfg.ConfigDir, "repositories")
	}
	if cfg.CheckoutRoot == "" {
		cfg.CheckoutRoot = filepath.Join(cfg.ConfigDir, "checkout")
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = filepath.Join(cfg.ConfigDir, "logs")
	}

	return cfg, nil
}

// loadINI parses pkgsynth.ini's [core] section into cfg. Keys of the
// [config-links] section populate ConfigLinks, mirroring what repeated
// --config <dependency>=<value> flags would set.
func (cfg *Config) loadINI(path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return err
	}

	core := file.Section("core")
	if core.HasKey("repositories_dir") {
		cfg.RepositoriesDir = core.Key("repositories_dir").String()
	}
	if core.HasKey("checkout_root") {
		cfg.CheckoutRoot = core.Key("checkout_root").String()
	}
	if core.HasKey("logs_dir") {
		cfg.LogsDir = core.Key("logs_dir").String()
	}
	if core.HasKey("fetch_timeout") {
		cfg.FetchTimeout = core.Key("fetch_timeout").MustInt(cfg.FetchTimeout)
	}
	if core.HasKey("max_workers_for_fetch") {
		cfg.MaxWorkersForFetch = core.Key("max_workers_for_fetch").MustInt(cfg.MaxWorkersForFetch)
	}
	if core.HasKey("progress") {
		cfg.Progress = core.Key("progress").MustBool(cfg.Progress)
	}
	if core.HasKey("verbose") {
		cfg.Verbose = core.Key("verbose").MustBool(cfg.Verbose)
	}
	if core.HasKey("recursive") {
		cfg.Recursive = core.Key("recursive").MustBool(cfg.Recursive)
	}
	if core.HasKey("deorphan") {
		cfg.Deorphan = core.Key("deorphan").MustBool(cfg.Deorphan)
	}

	if configSection := file.Section("config-links"); configSection != nil {
		for _, key := range configSection.Keys() {
			cfg.ConfigLinks[key.Name()] = key.String()
		}
	}

	return nil
}

// WriteDefaultConfig writes a commented pkgsynth.ini reflecting cfg to
// filename, for `pkgsynth init` to scaffold a fresh configuration
// directory.
func WriteDefaultConfig(filename string, cfg *Config) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return RenderConfig(file, cfg)
}

// RenderConfig writes the same commented pkgsynth.ini text
// WriteDefaultConfig persists to a file, to w instead — used by
// --no-private-config to print the proposed configuration to stdout
// rather than creating it.
func RenderConfig(w io.Writer, cfg *Config) error {
	fmt.Fprintln(w, "; pkgsynth configuration file")
	fmt.Fprintln(w, "; see pkgsynth(1) for details")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "[core]")
	fmt.Fprintf(w, "repositories_dir = %s\n", cfg.RepositoriesDir)
	fmt.Fprintf(w, "checkout_root = %s\n", cfg.CheckoutRoot)
	fmt.Fprintf(w, "logs_dir = %s\n", cfg.LogsDir)
	fmt.Fprintf(w, "fetch_timeout = %d\n", cfg.FetchTimeout)
	fmt.Fprintf(w, "max_workers_for_fetch = %d\n", cfg.MaxWorkersForFetch)
	fmt.Fprintf(w, "progress = %v\n", cfg.Progress)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "[config-links]")
	fmt.Fprintln(w, "; dependency = value")

	return nil
}

// Validate ensures the directories Config names exist or can be
// created, and that numeric settings are sane.
func (cfg *Config) Validate() error {
	requiredDirs := map[string]string{
		"ConfigDir":       cfg.ConfigDir,
		"RepositoriesDir": cfg.RepositoriesDir,
		"CheckoutRoot":    cfg.CheckoutRoot,
		"LogsDir":         cfg.LogsDir,
	}

	for name, path := range requiredDirs {
		if path == "" {
			return fmt.Errorf("%s is not configured", name)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
				}
				continue
			}
			return fmt.Errorf("%s directory %s: %w", name, path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", name, path)
		}
	}

	if cfg.MaxWorkersForFetch < 1 {
		return fmt.Errorf("MaxWorkersForFetch must be at least 1")
	}
	if cfg.FetchTimeout < 1 {
		return fmt.Errorf("FetchTimeout must be at least 1 second")
	}

	return nil
}
