// Package cmd implements pkgsynth's cobra CLI surface:
// pkg-build, pkg-checkout, pkg-fetch, rep-fetch, plus status/init
// utilities that expose the rest of the service layer.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkgsynth/config"
	"pkgsynth/service"
)

var (
	configDir string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "pkgsynth",
	Short: "Resolve dependencies and build a plan for a source-based package set",
	Long: `pkgsynth resolves version constraints across a package set, collects
build prerequisites recursively, negotiates postponed configuration
clusters, and orders the result into a buildable plan.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default: /etc/pkgsynth or /usr/local/etc/pkgsynth)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "echo planner diagnostics to stdout instead of the run log")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(repFetchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
}

// Execute runs the root command, returning the process exit code the
// caller (main.go) should use. Most failures map to 1;
// --no-private-config's configured code is returned directly by the
// commands that can trigger it via exitCodeError.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var ec *exitCodeError
		if asExitCodeError(err, &ec) {
			return ec.code
		}
		return 1
	}
	return 0
}

// exitCodeError lets a command request a specific process exit code,
// used by --no-private-config, which exits with the given code after
// printing the proposed private configuration.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func asExitCodeError(err error, target **exitCodeError) bool {
	ec, ok := err.(*exitCodeError)
	if !ok {
		return false
	}
	*target = ec
	return true
}

// loadConfig loads the configuration directory named by --config,
// falling back to the default search path when empty.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// newService loads configuration and opens a Service, the common
// first step of every subcommand.
func newService() (*service.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return service.NewService(cfg)
}

// ensurePrivateConfig implements --no-private-config: if cfg's
// pkgsynth.ini does not yet exist, either print the proposed
// configuration and request the configured exit code (when
// noPrivateConfigGiven is true), or scaffold it via svc.Initialize so the run
// can proceed.
func ensurePrivateConfig(svc *service.Service, cfg *config.Config, noPrivateConfigGiven bool, exitCode int) error {
	iniPath := cfg.ConfigDir + "/pkgsynth.ini"
	if _, err := os.Stat(iniPath); err == nil {
		return nil
	}

	if noPrivateConfigGiven {
		fmt.Fprintln(os.Stdout, "; no private configuration found, proposed pkgsynth.ini:")
		if err := config.RenderConfig(os.Stdout, cfg); err != nil {
			return err
		}
		return &exitCodeError{code: exitCode}
	}

	if _, err := svc.Initialize(); err != nil {
		return fmt.Errorf("auto-creating configuration: %w", err)
	}
	return nil
}
