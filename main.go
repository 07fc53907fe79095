package main

import (
	"os"

	"pkgsynth/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
