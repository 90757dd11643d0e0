// Package servecmder provides the serve command for running the API server.
package servecmder

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/api"
	"github.com/quorralabs/quorra/pkg/config"
	"github.com/quorralabs/quorra/pkg/conversation"
	convinmemory "github.com/quorralabs/quorra/pkg/conversation/inmemory"
	convpostgres "github.com/quorralabs/quorra/pkg/conversation/postgres"
	convsqlite "github.com/quorralabs/quorra/pkg/conversation/sqlite"
	"github.com/quorralabs/quorra/pkg/dotdir"
	"github.com/quorralabs/quorra/pkg/embeddings"
	embedollama "github.com/quorralabs/quorra/pkg/embeddings/ollama"
	embedopenai "github.com/quorralabs/quorra/pkg/embeddings/openai"
	"github.com/quorralabs/quorra/pkg/eventstream"
	eventkafka "github.com/quorralabs/quorra/pkg/eventstream/kafka"
	eventnop "github.com/quorralabs/quorra/pkg/eventstream/nop"
	"github.com/quorralabs/quorra/pkg/generation"
	genanthropic "github.com/quorralabs/quorra/pkg/generation/provider/anthropic"
	genollama "github.com/quorralabs/quorra/pkg/generation/provider/ollama"
	genopenai "github.com/quorralabs/quorra/pkg/generation/provider/openai"
	"github.com/quorralabs/quorra/pkg/logger"
	"github.com/quorralabs/quorra/pkg/pipeline"
	"github.com/quorralabs/quorra/pkg/prompt"
	"github.com/quorralabs/quorra/pkg/retrieval"
	"github.com/quorralabs/quorra/pkg/session"
	"github.com/quorralabs/quorra/pkg/vector"
	vecinmemory "github.com/quorralabs/quorra/pkg/vector/inmemory"
	vecqdrant "github.com/quorralabs/quorra/pkg/vector/qdrant"
	vecsqlite "github.com/quorralabs/quorra/pkg/vector/sqlitevec"
)

// conversationStore is the combined surface the serve command needs from a
// storage driver: the turn log plus the session mapping, backed by the same
// database.
type conversationStore interface {
	conversation.Store
	session.Mapper
}

type ServeCommander struct {
	cfg    *config.Config
	debug  bool
	logger *zap.Logger
}

const serveLongDesc string = `Run the Quorra API server.

The server exposes:
  POST /v1/ask                 Ask a question
  GET  /v1/conversations/:id   Inspect a conversation's turns
  GET  /ping                   Health check

Configuration comes from config.toml in the .quorra/ directory, QUORRA_*
environment variables, and flags, in ascending precedence.`

const serveShortDesc string = "Run the Quorra API server"

var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name: "listen", Shorthand: "l", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagStorageDriver: {
		Name: "storage-driver", ViperKey: "storage.driver",
		Description: "Conversation store driver (sqlite, postgres, memory)",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path",
		Description: "Path to the SQLite conversation database",
	},
	config.FlagPostgresDSN: {
		Name: "postgres-dsn", ViperKey: "storage.postgres_dsn",
		Description: "Postgres connection string for the conversation store",
	},
	config.FlagVectorStoreProv: {
		Name: "vector-store-provider", ViperKey: "vector_store.provider",
		Description: "Vector index provider (sqlite, qdrant, memory)",
	},
	config.FlagVectorStoreTgt: {
		Name: "vector-store-target", ViperKey: "vector_store.target",
		Description: "Vector index target (path or host:port)",
	},
	config.FlagEmbeddingProv: {
		Name: "embedding-provider", ViperKey: "embedding.provider",
		Description: "Embedding provider (ollama, openai)",
	},
	config.FlagEmbeddingTgt: {
		Name: "embedding-target", ViperKey: "embedding.target",
		Description: "Embedding service URL",
	},
	config.FlagEmbeddingModel: {
		Name: "embedding-model", ViperKey: "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagGenerationProv: {
		Name: "generation-provider", ViperKey: "generation.provider",
		Description: "Generation provider (ollama, openai, anthropic)",
	},
	config.FlagGenerationTgt: {
		Name: "generation-target", ViperKey: "generation.target",
		Description: "Generation service URL",
	},
	config.FlagGenerationModel: {
		Name: "generation-model", Shorthand: "m", ViperKey: "generation.model",
		Description: "Generation model name",
	},
	config.FlagContextBudget: {
		Name: "context-budget", ViperKey: "context.total_budget",
		Description: "Token budget for the assembled context",
	},
	config.FlagContextTopK: {
		Name: "top-k", Shorthand: "k", ViperKey: "context.top_k",
		Description: "Number of chunks retrieved per question",
	},
	config.FlagContextHistLimit: {
		Name: "history-limit", ViperKey: "context.history_limit",
		Description: "Number of recent turns fetched per question",
	},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagGenerationProv,
	config.FlagGenerationTgt,
	config.FlagGenerationModel,
	config.FlagContextBudget,
	config.FlagContextTopK,
	config.FlagContextHistLimit,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	// Flag values reach the config through BindRegisteredFlags and viper.
	for _, key := range serveFlagKeys {
		switch key {
		case config.FlagContextBudget, config.FlagContextTopK, config.FlagContextHistLimit:
			config.AddIntFlag(cmd, serveFlags, key, new(int))
		default:
			config.AddStringFlag(cmd, serveFlags, key, new(string))
		}
	}

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()

	store, err := c.createStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	vectorDriver, err := c.createVectorDriver(ctx)
	if err != nil {
		return err
	}
	defer vectorDriver.Close()

	embedder, err := c.createEmbedder()
	if err != nil {
		return err
	}
	defer embedder.Close()

	generator, err := c.createGenerator()
	if err != nil {
		return err
	}

	publisher, err := c.createPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	sessions := session.NewManager(store, c.logger)
	retriever := retrieval.NewClient(embedder, vectorDriver, retrieval.Config{
		TopK: c.cfg.Context.TopK,
	}, c.logger)
	assembler := prompt.NewAssembler(prompt.Config{
		TotalBudget: c.cfg.Context.TotalBudget,
		ChunkFloor:  c.cfg.Context.ChunkFloor,
	}, c.logger)
	genClient := generation.NewClient(generator, generation.Config{
		MaxAttempts:    c.cfg.Generation.MaxAttempts,
		AttemptTimeout: time.Duration(c.cfg.Generation.TimeoutSeconds) * time.Second,
	}, c.logger)

	p := pipeline.New(sessions, store, retriever, assembler, genClient, publisher, pipeline.Config{
		HistoryLimit:  c.cfg.Context.HistoryLimit,
		TopK:          c.cfg.Context.TopK,
		SystemPrompt:  c.cfg.Context.SystemPrompt,
		MaxConcurrent: c.cfg.Pipeline.MaxConcurrent,
		DegradedMode:  c.cfg.Pipeline.DegradedMode,
	}, c.logger)

	server := api.NewServer(api.Config{ListenAddr: c.cfg.API.Listen}, p, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) createStore(ctx context.Context) (conversationStore, error) {
	switch c.cfg.Storage.Driver {
	case "sqlite", "":
		path := c.cfg.Storage.SQLitePath
		if path == "" {
			target, err := dotdir.NewManager().Target("")
			if err != nil {
				return nil, fmt.Errorf("resolving storage path: %w", err)
			}
			path = filepath.Join(target, "quorra.db")
		}
		store, err := convsqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		c.logger.Info("using SQLite conversation store", zap.String("path", path))
		return store, nil

	case "postgres":
		store, err := convpostgres.NewStore(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		c.logger.Info("using Postgres conversation store")
		return store, nil

	case "memory":
		c.logger.Info("using in-memory conversation store")
		return convinmemory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", c.cfg.Storage.Driver)
	}
}

func (c *ServeCommander) createVectorDriver(ctx context.Context) (vector.Driver, error) {
	switch c.cfg.VectorStore.Provider {
	case "sqlite", "":
		path := c.cfg.VectorStore.Target
		if path == "" {
			target, err := dotdir.NewManager().Target("")
			if err != nil {
				return nil, fmt.Errorf("resolving vector store path: %w", err)
			}
			path = filepath.Join(target, "vectors.db")
		}
		driver, err := vecsqlite.NewDriver(vecsqlite.Config{
			DBPath:     path,
			Dimensions: c.cfg.Embedding.Dimensions,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite-vec driver: %w", err)
		}
		c.logger.Info("using sqlite-vec vector index", zap.String("path", path))
		return driver, nil

	case "qdrant":
		host, port, err := splitHostPort(c.cfg.VectorStore.Target)
		if err != nil {
			return nil, fmt.Errorf("parsing qdrant target: %w", err)
		}
		driver, err := vecqdrant.NewDriver(ctx, vecqdrant.Config{
			Host:       host,
			Port:       port,
			Collection: c.cfg.VectorStore.Collection,
			Dimensions: c.cfg.Embedding.Dimensions,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating qdrant driver: %w", err)
		}
		c.logger.Info("using Qdrant vector index", zap.String("target", c.cfg.VectorStore.Target))
		return driver, nil

	case "memory":
		c.logger.Info("using in-memory vector index")
		return vecinmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown vector store provider: %q", c.cfg.VectorStore.Provider)
	}
}

func (c *ServeCommander) createEmbedder() (embeddings.Embedder, error) {
	switch c.cfg.Embedding.Provider {
	case "ollama", "":
		return embedollama.NewEmbedder(embedollama.EmbedderConfig{
			BaseURL: c.cfg.Embedding.Target,
			Model:   c.cfg.Embedding.Model,
		})
	case "openai":
		return embedopenai.NewEmbedder(embedopenai.EmbedderConfig{
			BaseURL: c.cfg.Embedding.Target,
			Model:   c.cfg.Embedding.Model,
			APIKey:  c.cfg.Embedding.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", c.cfg.Embedding.Provider)
	}
}

func (c *ServeCommander) createGenerator() (generation.Generator, error) {
	switch c.cfg.Generation.Provider {
	case "ollama", "":
		return genollama.New(genollama.Config{
			BaseURL: c.cfg.Generation.Target,
			Model:   c.cfg.Generation.Model,
		})
	case "openai":
		return genopenai.New(genopenai.Config{
			BaseURL: c.cfg.Generation.Target,
			Model:   c.cfg.Generation.Model,
			APIKey:  c.cfg.Generation.APIKey,
		})
	case "anthropic":
		return genanthropic.New(genanthropic.Config{
			BaseURL: c.cfg.Generation.Target,
			Model:   c.cfg.Generation.Model,
			APIKey:  c.cfg.Generation.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider: %q", c.cfg.Generation.Provider)
	}
}

func (c *ServeCommander) createPublisher() (eventstream.Publisher, error) {
	switch c.cfg.Events.Provider {
	case "nop", "":
		return eventnop.NewPublisher(), nil
	case "kafka":
		publisher, err := eventkafka.NewPublisher(eventkafka.Config{
			Brokers: c.cfg.Events.Brokers,
			Topic:   c.cfg.Events.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing answer events to Kafka",
			zap.Strings("brokers", c.cfg.Events.Brokers),
			zap.String("topic", c.cfg.Events.Topic),
		)
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown events provider: %q", c.cfg.Events.Provider)
	}
}

func splitHostPort(target string) (string, int, error) {
	if target == "" {
		return "localhost", 6334, nil
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
