package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"pkgsynth/log"
)

const runLogName = "pkgsynth.log"

var logsOpts struct {
	lines int
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List and inspect the rotating run log and per-package planning traces",
	Long: `logs exposes cfg.LogsDir: pkgsynth.log (the rotating run log, see
pkgsynth/log.Logger) and one trace log per package checked out by
pkg-checkout (see pkgsynth/log.PackageLogger). With no subcommand it
lists what's available.`,
	RunE: runLogsList,
}

var logsViewCmd = &cobra.Command{
	Use:   "view <database/name | pkgsynth.log>",
	Short: "Print a log through $PAGER (or less), falling back to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsView,
}

var logsTailCmd = &cobra.Command{
	Use:   "tail <database/name | pkgsynth.log>",
	Short: "Print the last N lines of a log",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsTail,
}

var logsGrepCmd = &cobra.Command{
	Use:   "grep <database/name | pkgsynth.log> <pattern>",
	Short: "Search a log for pattern, printing matching lines with their line number",
	Args:  cobra.ExactArgs(2),
	RunE:  runLogsGrep,
}

func init() {
	logsTailCmd.Flags().IntVar(&logsOpts.lines, "lines", 40, "number of trailing lines to show")

	logsCmd.AddCommand(logsViewCmd)
	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsGrepCmd)
	rootCmd.AddCommand(logsCmd)
}

func runLogsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.ListLogs(cfg)
	return nil
}

func runLogsView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if args[0] == runLogName {
		log.ViewLog(cfg, runLogName)
		return nil
	}
	log.ViewPackageLog(cfg, args[0])
	return nil
}

func runLogsTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.TailLog(cfg, logFilename(args[0]), logsOpts.lines)
	return nil
}

func runLogsGrep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.GrepLog(cfg, logFilename(args[0]), args[1])
	return nil
}

// logFilename resolves a logs subcommand's first positional argument
// (either the literal run-log name or a database/name package key) to
// the filename TailLog/GrepLog expect relative to cfg.LogsDir, matching
// the "/" -> "___" rewrite NewPackageLogger applies when it creates the
// per-package trace file.
func logFilename(arg string) string {
	if arg == runLogName {
		return arg
	}
	return strings.ReplaceAll(arg, "/", "___") + ".log"
}
