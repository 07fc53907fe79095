package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a fresh configuration directory",
	Long: `init creates the repositories directory, checkout root, and logs
directory under --config (or the default search path), then writes a
commented pkgsynth.ini reflecting the resolved settings.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Initialize()
	if err != nil {
		return err
	}

	if result.AlreadyInit {
		fmt.Printf("already initialized: %s\n", result.ConfigFile)
		return nil
	}

	for _, dir := range result.CreatedDirs {
		fmt.Printf("created %s\n", dir)
	}
	fmt.Printf("wrote %s\n", result.ConfigFile)
	return nil
}
