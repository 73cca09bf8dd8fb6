package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/archidex/archidex/cache"
	"github.com/archidex/archidex/config"
	"github.com/archidex/archidex/embeddings"
	"github.com/archidex/archidex/env"
	"github.com/archidex/archidex/logger"
	"github.com/archidex/archidex/mcp/client"
	"github.com/archidex/archidex/search"
	"github.com/archidex/archidex/tools"
)

var rootCmd = &cobra.Command{
	Use:   "archidex",
	Short: "Document search tools over a managed hybrid search index",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := env.FlagOrEnv(cmd, "config", "ARCHIDEX_CONFIG", "")
	return config.Load(path)
}

func newCache(ctx context.Context, cfg config.CacheConfig, log logger.Logger) (cache.Cache, error) {
	switch cfg.Backend {
	case "off":
		return nil, nil
	case "memory":
		return cache.NewInMemory(ctx, cache.WithTTL(cfg.TTL.Std())), nil
	case "sqlite":
		return cache.NewSQLite(ctx, cfg.SQLitePath, cache.WithTTL(cfg.TTL.Std()))
	case "redis":
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rc.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		log.Debug("connected to redis at %s", cfg.RedisAddr)
		return cache.NewComposite(
			cache.NewInMemory(ctx, cache.WithTTL(cfg.TTL.Std())),
			cache.NewRedis(rc, cache.WithTTL(cfg.TTL.Std()), cache.WithPrefix("archidex")),
		), nil
	}
	return nil, errors.Newf("unknown cache backend %q", cfg.Backend)
}

func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*tools.Service, error) {
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Embeddings.Validate(); err != nil {
		return nil, err
	}
	searcher := search.New(cfg.Search.Endpoint, cfg.Search.Index, cfg.Search.APIKey, log)
	embedder := embeddings.New(cfg.Embeddings.Endpoint, cfg.Embeddings.APIKey, cfg.Embeddings.Model, log)

	opts := []tools.Option{}
	c, err := newCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	if c != nil {
		opts = append(opts, tools.WithCache(c, cfg.Cache.TTL.Std()))
	}
	return tools.NewService(searcher, embedder, log, opts...), nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search tools over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		service, err := newService(ctx, cfg, log)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: service.Handler(),
		}
		errs := make(chan error, 1)
		go func() {
			log.Info("listening on %s", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errs <- err
			}
		}()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

// connectRemote dials the remote tool server's event stream and completes
// the handshake.
func connectRemote(cmd *cobra.Command, log logger.Logger, cfg *config.Config) (*client.Client, error) {
	if err := cfg.Remote.Validate(); err != nil {
		return nil, err
	}
	opts := []client.Option{
		client.WithCallTimeout(cfg.Remote.CallTimeout.Std()),
	}
	if cfg.Remote.AccessKey != "" {
		opts = append(opts, client.WithAccessKey(cfg.Remote.AccessKey))
	}
	c := client.New(cfg.Remote.StreamURL, log, opts...)
	if err := c.Connect(cmd.Context(), cfg.Remote.HandshakeTimeout.Std()); err != nil {
		return nil, err
	}
	if _, err := c.Initialize(cmd.Context()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func printJSON(raw json.RawMessage) error {
	var indented map[string]any
	if err := json.Unmarshal(raw, &indented); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, err := json.MarshalIndent(indented, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the remote server exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		c, err := connectRemote(cmd, log, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.ListTools(cmd.Context())
		if err != nil {
			return err
		}
		for _, tool := range list {
			fmt.Printf("%s\t%s\n", tool.Name, tool.Description)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the remote index for documents matching a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		c, err := connectRemote(cmd, log, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.CallToolJSON(cmd.Context(), tools.ToolSearch, map[string]interface{}{
			"query": args[0],
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <doc-id>",
	Short: "Fetch a document from the remote index by its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		c, err := connectRemote(cmd, log, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.CallToolJSON(cmd.Context(), tools.ToolSearchByDocID, map[string]interface{}{
			"doc_id": args[0],
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func main() {
	rootCmd.PersistentFlags().String("config", "", "path to a yaml config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, toolsCmd, searchCmd, getCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
