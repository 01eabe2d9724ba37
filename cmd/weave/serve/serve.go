// Package servecmder provides the serve command running the API server with
// the MCP endpoint and the background worker pool.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/api"
	"github.com/papercomputeco/weave/api/mcp"
	"github.com/papercomputeco/weave/cmd/weave/stack"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/enrich/worker"
	"github.com/papercomputeco/weave/pkg/logger"
)

type serveCommander struct {
	flags  config.FlagSet
	listen string
	logger *zap.Logger

	storageDriver string
	sqlitePath    string
	postgresDSN   string
	provider      string
	model         string
	vectorStore   string
	logFile       string
	workers       uint
	events        string
	brokers       string
}

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagAnalysisProv,
	config.FlagAnalysisModel,
	config.FlagVectorStoreProv,
	config.FlagWorkers,
	config.FlagEventsProv,
	config.FlagEventsBrokers,
}

const serveLongDesc string = `Run the weave server.

The server exposes the HTTP API and the MCP endpoint at /mcp. Notes created
through POST /items are enriched in the background by a fixed pool of
workers; POST /items/:id/process and POST /pending run synchronously.

Settings come from flags, WEAVE_* environment variables and config.toml,
in that order.`

const serveShortDesc string = "Run the weave server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{flags: config.Flags}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, cmder.flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAnalysisProv, &cmder.provider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAnalysisModel, &cmder.model)
	config.AddStringFlag(cmd, cmder.flags, config.FlagVectorStoreProv, &cmder.vectorStore)
	config.AddUintFlag(cmd, cmder.flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEventsProv, &cmder.events)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEventsBrokers, &cmder.brokers)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	v, configDir, err := stack.Resolve(cmd, serveFlags)
	if err != nil {
		return err
	}

	c.logger, err = c.newLogger(cmd)
	if err != nil {
		return err
	}
	defer c.logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	st, err := stack.New(ctx, stack.SettingsFromViper(v, configDir), c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := worker.NewPool(&worker.Config{
		Processor:  st.Processor,
		NumWorkers: v.GetUint("enrich.workers"),
		JobTimeout: v.GetDuration("enrich.lease_ttl"),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Processor: st.Processor,
		Batch:     st.Batch,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	listen := v.GetString("api.listen")
	server, err := api.NewServer(api.Config{
		ListenAddr: listen,
		Processor:  st.Processor,
		Batch:      st.Batch,
		Pool:       pool,
		MCPHandler: mcpServer.Handler(),
	}, st.Store, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

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

func (c *serveCommander) newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	console := stack.CommandLogger(cmd)
	if c.logFile == "" {
		return console, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	file := logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithSource(true), logger.WithWriter(f))
	return logger.Multi(console, file), nil
}
