package main

import (
	"os"

	"voicelink/cmd/voicelink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
