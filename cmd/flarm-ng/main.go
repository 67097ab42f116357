package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flarm-ng/internal/config"
	"flarm-ng/internal/web"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "flarm-ng",
	Short: "FLARM v7 receiver and transmitter",
	Long: `flarm-ng decodes FLARM v7 frames received by an external 868 MHz
demodulator, keeps a table of nearby traffic, forwards it as GDL90 and
periodically encodes the own-ship position for transmission.`,
	SilenceUsage: true,
	RunE:         runService,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <frame-log>",
	Short: "Summarize a recorded frame log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printLogSummary(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./flarm-ng.yaml", "Path to YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(summaryCmd)
}

func newLogger(level string, logs *web.LogBuffer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	if logs != nil {
		log.AddHook(logs.Hook())
	}
	return log, nil
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logs := web.NewLogBuffer(2000)
	log, err := newLogger(cfg.Log.Level, logs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, log, logs)
	if err != nil {
		return err
	}
	defer rt.Close()

	log.WithFields(logrus.Fields{
		"config": configPath,
		"mode":   rt.mode,
	}).Info("flarm-ng starting")
	err = rt.Run(ctx)
	log.Info("flarm-ng stopping")
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
