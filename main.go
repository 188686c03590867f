// Package main is the entry point for the voiceorb terminal voice chat.
package main

import (
	"fmt"
	"os"

	"voiceorb/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
