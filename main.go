package main

import (
	"os"

	"imagegen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
