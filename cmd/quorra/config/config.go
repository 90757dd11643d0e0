// Package configcmder provides the config command for managing persistent
// quorra configuration stored in the .quorra/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent quorra configuration.

Configuration is stored as config.toml in the .quorra/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen, client.api_target,
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  generation.provider, generation.target, generation.model,
  context.total_budget, context.chunk_floor, context.top_k,
  context.history_limit, context.system_prompt,
  events.provider, events.topic

Use subcommands to get, set, or list configuration values:
  quorra config set <key> <value>    Set a configuration value
  quorra config get <key>            Get a configuration value
  quorra config list                 List all configuration values

Examples:
  quorra config set generation.provider anthropic
  quorra config set embedding.model nomic-embed-text
  quorra config get context.total_budget
  quorra config list`

const configShortDesc string = "Manage persistent quorra configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
