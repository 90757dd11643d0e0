// Package quorracmder
package quorracmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/quorralabs/quorra/cmd/quorra/ask"
	configcmder "github.com/quorralabs/quorra/cmd/quorra/config"
	servecmder "github.com/quorralabs/quorra/cmd/quorra/serve"
)

const quorraLongDesc string = `Quorra answers questions over your indexed documents,
grounded in retrieval and conversation memory.

Run services using:
  quorra serve         Run the API server
  quorra ask           Ask a question through a running server
  quorra config        Manage persistent configuration`

const quorraShortDesc string = "Quorra - Retrieval-grounded question answering"

func NewQuorraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quorra",
		Short: quorraShortDesc,
		Long:  quorraLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .quorra/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())

	return cmd
}
