package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkgsynth/service"
	"pkgsynth/source"
)

var repFetchOpts struct {
	fetchTimeout int
}

var repFetchCmd = &cobra.Command{
	Use:   "rep-fetch [repository]...",
	Short: "Repair a broken checkout cache and re-fetch repository state",
	Long: `rep-fetch is the repair path ExternalFetchFailure and a broken checkout
cache advise running: it clears any moved-out repository
directory left behind by a crashed pkg-build/pkg-checkout, then
re-fetches the given repositories (or, with none given, just performs
the cache repair).`,
	RunE: runRepFetch,
}

func init() {
	f := repFetchCmd.Flags()
	f.IntVar(&repFetchOpts.fetchTimeout, "fetch-timeout", 60, "seconds allowed for each repository fetch")
}

func runRepFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.FetchTimeout = repFetchOpts.fetchTimeout

	svc, err := service.NewService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Cleanup(service.CleanupOptions{IgnoreErrors: true})
	if err != nil {
		return fmt.Errorf("repairing repository state: %w", err)
	}
	for _, dir := range result.BrokenRepositories {
		fmt.Printf("repaired broken repository state at %s\n", dir)
	}
	if len(result.BrokenRepositories) == 0 {
		fmt.Println("no broken repository state found")
	}

	for _, location := range args {
		fragments, err := svc.Fetcher().FetchRepository(context.Background(), location, false, source.ReasonRepair)
		if err != nil {
			return fmt.Errorf("re-fetching %s: %w", location, err)
		}
		fmt.Printf("%s: re-fetched, %d fragment(s)\n", location, len(fragments))
	}

	return nil
}
