// Package commands implements the 'voicegated' command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/voicegate/gateway/internal/audit"
	"github.com/voicegate/gateway/internal/config"
	"github.com/voicegate/gateway/internal/edge"
	"github.com/voicegate/gateway/internal/edgewire"
	"github.com/voicegate/gateway/internal/haclient"
	"github.com/voicegate/gateway/internal/session"
)

// Exit codes, per the edge-protocol gateway's external interface contract:
// 2 means "could not start because a required credential is missing", 0
// means a clean shutdown (SIGINT/SIGTERM), 1 is any other startup failure.
const (
	exitOK            = 0
	exitFailure       = 1
	exitMissingAPIKey = 2
)

var rootCmd = &cobra.Command{
	Use:   "voicegated",
	Short: "Edge voice gateway bridging a local device protocol to Gemini Live",
}

var flagConfigFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway, accepting edge connections and bridging them to Gemini Live",
	RunE:  runGateway,
}

func init() {
	runCmd.Flags().StringVar(&flagConfigFile, "config", "", "packaged-options file (YAML or JSON) to layer under environment variables")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the command tree and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ece *exitCodeError
		if errors.As(err, &ece) {
			return ece.code
		}
		return exitFailure
	}
	return exitOK
}

type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

var bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")).Padding(0, 1)

func runGateway(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(flagConfigFile)
	if err != nil {
		return &exitCodeError{code: exitFailure, err: fmt.Errorf("load settings: %w", err)}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: settings.LogLevelParsed})))
	logger := slog.Default()

	fmt.Println(bannerStyle.Render("voicegated"))

	if settings.GeminiAPIKey == "" {
		logger.Error("GEMINI_API_KEY (or GOOGLE_API_KEY) is not set")
		return &exitCodeError{code: exitMissingAPIKey, err: fmt.Errorf("missing Gemini API key")}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	haClient := haclient.New(settings.HAURL, settings.HAToken, haclient.WithLogger(logger))

	journal, err := audit.Open(settings.JournalPath, logger)
	if err != nil {
		return fmt.Errorf("open tool-call journal: %w", err)
	}
	defer journal.Close()

	sessionCfg := session.Config{
		GeminiAPIKey:             settings.GeminiAPIKey,
		GeminiAPIVersion:         settings.GeminiAPIVersion,
		Model:                    settings.Model,
		InputSampleRateHz:        settings.InputSampleRateHz,
		OutputSampleRateHz:       settings.OutputSampleRateHz,
		GeminiOutputSampleRateHz: settings.GeminiOutputSampleRateHz,
		SilenceTailMs:            settings.SilenceTailMs,
		AudioChunkSize:           settings.AudioChunkSize,
		AllowedDomains:           settings.AllowedDomains,
		EntityAllowlist:          settings.EntityAllowlist,
		EntityBlocklist:          settings.EntityBlocklist,
		MaxContextEntities:       settings.MaxContextEntities,
	}

	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	server := edgewire.NewServer(addr, func(connCtx context.Context, conn *edgewire.Conn) {
		connLogger := logger.With("conn_id", conn.ID(), "remote", conn.RemoteAddr())
		connLogger.Info("edge connection accepted")

		outCallbacks := session.OutputCallbacks{
			OnStart: func(rateHz int) error { return conn.WriteAudioStart(rateHz) },
			OnChunk: func(pcm16 []byte, rateHz int) error { return conn.WriteAudioChunk(rateHz, pcm16) },
			OnStop:  func() error { return conn.WriteAudioStop() },
		}

		ctrl, err := session.New(connCtx, sessionCfg, haClient, outCallbacks, journal, connLogger)
		if err != nil {
			connLogger.Error("failed to build session controller", "error", err)
			return
		}
		adapter := edge.NewAdapter(conn, ctrl, settings.InputSampleRateHz, connLogger)

		if err := adapter.Run(connCtx); err != nil {
			connLogger.Debug("edge connection closed", "error", err)
		}
		connLogger.Info("edge connection closed")
	}, logger)

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}
