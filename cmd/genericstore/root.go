/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suparena/genericstore"
	"github.com/suparena/genericstore/config"
)

const envPrefix = "genericstore"

// cli carries what a command run needs between the root hooks and the
// subcommand.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	logger *zap.Logger
	store  *genericstore.Store
}

// execute runs one command line. The store is closed even when the
// command fails.
func execute(out io.Writer, args []string) error {
	c, root := newRootCmd(out)
	root.SetArgs(args)
	err := root.Execute()
	if cerr := c.teardown(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(out io.Writer) (*cli, *cobra.Command) {
	c := &cli{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "genericstore",
		Short: "backend-agnostic datastore facade",
		Long: fmt.Sprintf(`genericstore (v%s)

Runs one operation against the providers listed in a configuration file.
Writes go to every provider in order; reads are served by the first.`, genericstore.Version),
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.String("config", "genericstore.yaml", "YAML file listing the providers")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("metrics", false, "print metrics in Prometheus text format on exit")
	flags.Duration("timeout", 30*time.Second, "deadline for the whole operation")
	flags.String("table", "", "table to operate on")
	flags.String("key", "", "key field name")
	flags.String("key-value", "", "key value")
	flags.String("subkey", "", "subkey field name")
	flags.String("subkey-value", "", "subkey value")

	root.AddCommand(
		c.getCmd(),
		c.putCmd(),
		c.updateCmd(),
		c.deleteCmd(),
		c.scanCmd(),
		c.queryCmd(),
		c.batchGetCmd(),
		c.batchWriteCmd(),
		c.versionCmd(),
	)
	return c, root
}

// initConfig loads .env files and binds flags and GENERICSTORE_ variables.
func (c *cli) initConfig(cmd *cobra.Command) error {
	if err := config.LoadEnv(".env", ".env.local"); err != nil {
		return err
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	return c.v.BindPFlags(cmd.Flags())
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := c.initConfig(cmd); err != nil {
		return err
	}
	logger, err := newLogger(c.v.GetString("log-level"))
	if err != nil {
		return err
	}
	c.logger = logger
	zap.ReplaceGlobals(logger)

	if cmd.Annotations["store"] != "none" {
		c.store = genericstore.New(genericstore.WithLogger(logger))
		ctx, cancel := c.context(cmd)
		defer cancel()
		if err := c.store.ConnectFile(ctx, c.v.GetString("config")); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) teardown() error {
	var err error
	if c.store != nil {
		err = c.store.Close()
		c.store = nil
	}
	if c.v.GetBool("metrics") {
		metrics.WritePrometheus(os.Stderr, false)
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return err
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.v.GetDuration("timeout"))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
