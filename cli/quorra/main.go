package main

import (
	"os"

	quorracmder "github.com/quorralabs/quorra/cmd/quorra"
)

func main() {
	cmd := quorracmder.NewQuorraCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
