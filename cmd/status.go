package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkgsynth/service"
)

var statusCmd = &cobra.Command{
	Use:   "status [database/name]...",
	Short: "Report selected packages and the replaced/postponed audit trail",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Status(service.StatusOptions{Keys: args})
	if err != nil {
		return err
	}

	if len(result.Selected) == 0 {
		fmt.Println("no packages selected")
	}
	for _, sp := range result.Selected {
		fmt.Println(service.DescribeSelected(sp))
	}

	if len(result.Audit) > 0 {
		fmt.Println("\naudit trail:")
		for _, entry := range result.Audit {
			fmt.Printf("  [%s] %s %s/%s: %s\n", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Kind, entry.Database, entry.Name, entry.Detail)
		}
	}

	return nil
}
