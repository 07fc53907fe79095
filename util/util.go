// Package util holds small interactive-CLI helpers shared by the
// cobra commands in cmd/.
package util

import (
	"fmt"
	"strings"
)

// AskYN prompts the user for yes/no confirmation before an action with
// a visible side effect (building, checking out, purging a directory).
func AskYN(prompt string, defaultYes bool) bool {
	if defaultYes {
		fmt.Printf("%s [Y/n]: ", prompt)
	} else {
		fmt.Printf("%s [y/N]: ", prompt)
	}

	var response string
	fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}

	return response == "y" || response == "yes"
}
