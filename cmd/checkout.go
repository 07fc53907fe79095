package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkgsynth/plan"
	"pkgsynth/service"
	"pkgsynth/source"
	"pkgsynth/version"
)

var checkoutOpts struct {
	database     string
	checkoutRoot string
	purge        bool
	replace      bool
	simulate     bool
	fetchTimeout int
}

var checkoutCmd = &cobra.Command{
	Use:   "pkg-checkout <repository> <package>[@version]",
	Short: "Materialize one package's source out of a repository",
	Long: `pkg-checkout fetches repository, locates the named package (pinned to
@version when given, otherwise its best available version), and
materializes its source into the configuration via the checkout-cache
contract.`,
	Args: cobra.ExactArgs(2),
	RunE: runCheckout,
}

func init() {
	f := checkoutCmd.Flags()
	f.StringVar(&checkoutOpts.database, "database", "host", "configuration database the checkout is recorded under")
	f.StringVar(&checkoutOpts.checkoutRoot, "checkout-root", "", "destination root for the checked-out source")
	f.BoolVar(&checkoutOpts.purge, "checkout-purge", false, "purge any existing destination before checking out")
	f.BoolVar(&checkoutOpts.replace, "replace", false, "replace an already-checked-out source root")
	f.BoolVar(&checkoutOpts.simulate, "simulate", false, "report what would happen without touching the filesystem")
	f.IntVar(&checkoutOpts.fetchTimeout, "fetch-timeout", 60, "seconds allowed for the repository fetch")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	repository, request := args[0], args[1]
	name, pinned, hasPin := strings.Cut(request, "@")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.FetchTimeout = checkoutOpts.fetchTimeout

	svc, err := service.NewService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	fragments, err := svc.Fetcher().FetchRepository(context.Background(), repository, false, source.ReasonUserRequested)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", repository, err)
	}

	var pin version.Version
	if hasPin {
		v, err := version.Parse(pinned)
		if err != nil {
			return fmt.Errorf("parsing version %q: %w", pinned, err)
		}
		pin = v
	}

	var chosenFragment source.Fragment
	var chosenPackage *plan.AvailablePackage
	for _, frag := range fragments {
		for _, ap := range frag.Packages {
			if ap.Name != name {
				continue
			}
			if hasPin && !version.Equal(ap.Version, pin) {
				continue
			}
			if chosenPackage == nil || version.Compare(ap.Version, chosenPackage.Version, false, false) > 0 {
				chosenFragment = frag
				chosenPackage = ap
			}
		}
	}
	if chosenPackage == nil {
		return fmt.Errorf("package %s not found in %s", request, repository)
	}

	result, err := svc.Checkout(chosenPackage, chosenFragment, service.CheckoutOptions{
		Database: checkoutOpts.database,
		DestRoot: checkoutOpts.checkoutRoot,
		Replace:  checkoutOpts.replace,
		Purge:    checkoutOpts.purge,
		Simulate: checkoutOpts.simulate,
	})
	if err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}

	fmt.Printf("checked out %s %s into %s in %s\n", result.Package, result.Version, result.SourceRoot, result.Duration)
	return nil
}
