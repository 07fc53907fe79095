package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkgsynth/service"
	"pkgsynth/source"
)

var fetchOpts struct {
	shallow      bool
	fetchTimeout int
}

var fetchCmd = &cobra.Command{
	Use:   "pkg-fetch <repository>...",
	Short: "Fetch repository metadata without resolving a plan",
	Long: `pkg-fetch refreshes one or more repository locations and reports the
fragments and packages found, without entering any build roots or
running the collector. Useful to populate the repositories directory
ahead of an offline pkg-build run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.BoolVar(&fetchOpts.shallow, "shallow", false, "fetch only the latest fragment instead of full chronology")
	f.IntVar(&fetchOpts.fetchTimeout, "fetch-timeout", 60, "seconds allowed for each repository fetch")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.FetchTimeout = fetchOpts.fetchTimeout

	svc, err := service.NewService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	for _, location := range args {
		fragments, err := svc.Fetcher().FetchRepository(context.Background(), location, fetchOpts.shallow, source.ReasonUserRequested)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", location, err)
		}
		packageCount := 0
		for _, frag := range fragments {
			packageCount += len(frag.Packages)
		}
		fmt.Printf("%s: %d fragment(s), %d package(s)\n", location, len(fragments), packageCount)
	}

	return nil
}
