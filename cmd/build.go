package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pkgsynth/plan"
	"pkgsynth/service"
	"pkgsynth/util"
)

var buildOpts struct {
	database          string
	repos             []string
	upgrade           bool
	patch             bool
	deorphan          bool
	recursive         bool
	configureOnly     bool
	keepOut           bool
	disfigure         bool
	configLinks       []string
	checkoutRoot      string
	checkoutPurge     bool
	noPrivateConfig   bool
	noPrivateConfigEC int
	yes               bool
	progress          bool
	noProgress        bool
	fetchTimeout      int
}

var buildCmd = &cobra.Command{
	Use:   "pkg-build [packages...]",
	Short: "Resolve and order a build plan for the given packages",
	Long: `pkg-build is the primary entry point: it fetches repository metadata
(when --repository locations are given), enters the requested packages
as build roots, and runs the collector and ordering engine to produce
a plan.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildOpts.database, "database", "host", "configuration database the roots are entered into")
	f.StringArrayVar(&buildOpts.repos, "repository", nil, "repository location to fetch before resolving (repeatable)")
	f.BoolVarP(&buildOpts.upgrade, "upgrade", "u", false, "prefer the newest available version for a root")
	f.BoolVar(&buildOpts.patch, "patch", false, "allow patch-level replacement of already-selected versions")
	f.BoolVar(&buildOpts.deorphan, "deorphan", false, "reselect packages left without a satisfying alternative")
	f.BoolVarP(&buildOpts.recursive, "recursive", "r", false, "recurse into prerequisites of already-configured dependents")
	f.BoolVar(&buildOpts.configureOnly, "configure-only", false, "stop after configuration, without a build-system invocation")
	f.BoolVar(&buildOpts.keepOut, "keep-out", false, "keep prior output roots instead of disfiguring them first")
	f.BoolVar(&buildOpts.disfigure, "disfigure", false, "disfigure and drop packages instead of building them")
	f.StringArrayVar(&buildOpts.configLinks, "config", nil, "explicit dependency-configuration link as name=value (repeatable)")
	f.StringVar(&buildOpts.checkoutRoot, "checkout-root", "", "override the configured checkout root directory")
	f.BoolVar(&buildOpts.checkoutPurge, "checkout-purge", false, "purge checked-out source after a successful build")
	f.BoolVar(&buildOpts.noPrivateConfig, "no-private-config", false, "fail instead of auto-creating a missing pkgsynth.ini")
	f.IntVar(&buildOpts.noPrivateConfigEC, "no-private-config-exit-code", 1, "exit code to use with --no-private-config")
	f.BoolVarP(&buildOpts.yes, "yes", "y", false, "answer yes to the confirmation prompt")
	f.BoolVar(&buildOpts.progress, "progress", true, "show the interactive progress dashboard")
	f.BoolVar(&buildOpts.noProgress, "no-progress", false, "disable the interactive progress dashboard")
	f.IntVar(&buildOpts.fetchTimeout, "fetch-timeout", 60, "seconds allowed for a single repository fetch")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Upgrade = buildOpts.upgrade
	cfg.Patch = buildOpts.patch
	cfg.Deorphan = buildOpts.deorphan
	cfg.Recursive = buildOpts.recursive
	cfg.ConfigureOnly = buildOpts.configureOnly
	cfg.KeepOut = buildOpts.keepOut
	cfg.Disfigure = buildOpts.disfigure
	cfg.CheckoutPurge = buildOpts.checkoutPurge
	cfg.Yes = buildOpts.yes
	cfg.Progress = buildOpts.progress && !buildOpts.noProgress
	cfg.FetchTimeout = buildOpts.fetchTimeout
	if buildOpts.checkoutRoot != "" {
		cfg.CheckoutRoot = buildOpts.checkoutRoot
	}
	cfg.ConfigLinks = parseConfigLinks(buildOpts.configLinks)

	svc, err := service.NewService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := ensurePrivateConfig(svc, cfg, buildOpts.noPrivateConfig, buildOpts.noPrivateConfigEC); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nreceived signal %v, restoring checkout cache...\n", sig)
		svc.ClearActiveCache()
		os.Exit(1)
	}()

	result, err := svc.Plan(service.PlanOptions{
		Roots:               args,
		RepositoryLocations: buildOpts.repos,
		Database:            buildOpts.database,
		Upgrade:             buildOpts.upgrade,
	})
	if err != nil {
		return fmt.Errorf("resolving build plan: %w", err)
	}

	toBuild := 0
	for _, bp := range result.Ordered {
		if bp.Action == plan.ActionBuild {
			toBuild++
		}
	}
	if toBuild == 0 {
		fmt.Println("nothing to build, all packages up to date")
		return nil
	}

	fmt.Printf("plan resolved: %d package(s) to build, in order:\n", toBuild)
	for _, bp := range result.Ordered {
		if bp.Action != plan.ActionBuild || bp.Available == nil {
			continue
		}
		fmt.Printf("  %s/%s %s\n", bp.Database, bp.Available.Name, bp.Available.Version)
	}

	if cfg.ConfigureOnly {
		fmt.Println("--configure-only given, stopping before checkout/build")
		return nil
	}

	if !cfg.Yes && !util.AskYN(fmt.Sprintf("proceed with %d package(s)", toBuild), true) {
		fmt.Println("build cancelled")
		return nil
	}

	fmt.Println("plan persisted; run pkg-checkout for each package to materialize its source")
	return nil
}

// parseConfigLinks turns repeated "name=value" --config flags into the
// ConfigLinks map the collector's configuration clauses consult.
func parseConfigLinks(pairs []string) map[string]string {
	links := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		links[name] = value
	}
	return links
}
