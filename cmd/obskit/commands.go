package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obskit/internal/domain"
	"obskit/internal/infra/envutil"
	"obskit/internal/infra/telemetry"
	"obskit/internal/infra/telemetry/logging"
)

func newHealthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the health probe battery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := opts.manager.HealthStatus(cmd.Context())
			if err != nil {
				return err
			}
			report := telemetry.BuildHealthReport(statuses)
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if err := printHealth(out, statuses); err != nil {
				return err
			}
			if report.Status == "error" {
				return exitSilent(2)
			}
			return nil
		},
	}
}

type snapshotOptions struct {
	format    string
	name      string
	operation string
	errorText string
}

func newSnapshotCmd(opts *cliOptions) *cobra.Command {
	var snap snapshotOptions
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Generate and persist a diagnostic snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cause error
			if strings.TrimSpace(snap.errorText) != "" {
				cause = errors.New(snap.errorText)
			}
			snapshot, err := opts.manager.CreateSnapshot(cmd.Context(), workspaceName(opts, snap.name), snap.operation, cause)
			if err != nil {
				return err
			}
			format := snap.format
			if opts.jsonOutput {
				format = "json"
			}
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), snapshot)
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), snapshot)
			default:
				return fmt.Errorf("unsupported format %q (json, yaml)", format)
			}
		},
	}
	cmd.Flags().StringVar(&snap.format, "format", "json", "output format (json, yaml)")
	cmd.Flags().StringVar(&snap.name, "name", "", "workspace name recorded on the snapshot")
	cmd.Flags().StringVar(&snap.operation, "operation", "", "operation the snapshot is taken for")
	cmd.Flags().StringVar(&snap.errorText, "error", "", "error message to attach to the snapshot")
	return cmd
}

func newPromptCmd(opts *cliOptions) *cobra.Command {
	var snapshotID, description, errorText string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render a troubleshooting prompt from a diagnostic snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			diag, err := opts.manager.Diagnostics()
			if err != nil {
				return err
			}
			var snapshot domain.DiagnosticSnapshot
			if snapshotID != "" {
				snapshot, err = diag.LoadSnapshot(snapshotID)
				if err != nil {
					return err
				}
			} else {
				var cause error
				if strings.TrimSpace(errorText) != "" {
					cause = errors.New(errorText)
				}
				snapshot = diag.GenerateSnapshot(cmd.Context(), workspaceName(opts, ""), "", cause)
			}
			prompt := diag.GenerateAIPrompt(snapshot, description)
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"snapshotId": snapshot.ID, "prompt": prompt})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return err
		},
	}
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "id of a persisted snapshot (default: take a fresh one)")
	cmd.Flags().StringVar(&description, "describe", "", "problem description")
	cmd.Flags().StringVar(&errorText, "error", "", "error message for a fresh snapshot")
	return cmd
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List indexed diagnostic snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			diag, err := opts.manager.Diagnostics()
			if err != nil {
				return err
			}
			records, err := diag.History(limit)
			if err != nil {
				if errors.Is(err, domain.ErrComponentDisabled) {
					return fmt.Errorf("%w (set diagnostics.historyPath)", err)
				}
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to list")
	return cmd
}

func newLogsCmd(opts *cliOptions) *cobra.Command {
	var (
		limit     int
		level     string
		operation string
		file      string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show entries from the JSON-lines log file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = opts.cfg.Logger.FilePath
			}
			if path == "" {
				return errors.New("no log file configured (set logger.filePath or pass --file)")
			}
			var filter domain.LogLevel
			if level != "" {
				parsed, err := domain.ParseLogLevel(level)
				if err != nil {
					return err
				}
				filter = parsed
			}
			entries, err := logging.ReadLogFile(path, limit, filter, operation)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			for _, entry := range entries {
				printLogEntry(cmd.OutOrStdout(), entry)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultRecentLogsLimit, "maximum entries to show")
	cmd.Flags().StringVar(&level, "level", "", "only show entries at this level")
	cmd.Flags().StringVar(&operation, "operation", "", "only show entries for this operation")
	cmd.Flags().StringVar(&file, "file", "", "log file (default: logger.filePath)")
	return cmd
}

func newMetricsCmd(opts *cliOptions) *cobra.Command {
	var (
		window time.Duration
		prom   bool
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Sample process metrics and print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			collector, err := opts.manager.Metrics()
			if err != nil {
				return err
			}
			collector.SampleSystem()
			collector.RecordMemoryUsage("metrics")

			out := cmd.OutOrStdout()
			if prom {
				text, err := telemetry.GatherText(opts.registry)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, text)
				return err
			}
			summary := collector.Summary(window)
			if opts.jsonOutput {
				return writeJSON(out, summary)
			}
			printSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", domain.DefaultSummaryWindow, "summary window")
	cmd.Flags().BoolVar(&prom, "prom", false, "print the Prometheus text exposition instead")
	return cmd
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var tail bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run background sampling and health sweeps, serving /metrics and /healthz",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			if err := opts.manager.Start(ctx); err != nil {
				return err
			}
			if err := opts.manager.Serve(ctx); err != nil {
				return err
			}
			logger, err := opts.manager.Logger()
			if err != nil {
				return err
			}

			if opts.configPath != "" {
				go func() {
					if err := opts.manager.WatchAndApply(ctx, opts.configPath); err != nil {
						logger.Warn("Config watch stopped", domain.LogContext{Operation: "config"}, map[string]any{"error": err.Error()})
					}
				}()
			}

			logger.Info("Watching", domain.LogContext{Operation: "watch"}, map[string]any{
				"workspace": opts.cfg.Diagnostics.WorkspaceDir,
			})
			if !tail {
				<-ctx.Done()
				return nil
			}
			out := cmd.OutOrStdout()
			for entry := range logger.Subscribe(ctx) {
				if opts.jsonOutput {
					_ = writeJSON(out, entry)
					continue
				}
				printLogEntry(out, entry)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "listen address for /metrics and /healthz (default: observability.listenAddress)")
	cmd.Flags().BoolVar(&tail, "tail", false, "stream log entries to stdout")
	return cmd
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	var (
		name             string
		snapshotOnFailed bool
	)
	cmd := &cobra.Command{
		Use:   "run -- COMMAND [ARGS...]",
		Short: "Run a command as an observed operation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			operation := name
			if operation == "" {
				operation = "run_" + filepath.Base(args[0])
			}
			workspace := workspaceName(opts, "")
			op, opCtx := opts.manager.StartOperationContext(ctx, operation, domain.LogContext{
				Workspace: workspace,
				Fields:    map[string]any{"command": strings.Join(args, " ")},
			})
			procLogger := telemetry.LoggerWithOperation(opCtx, opts.logger)

			env := envutil.ToolEnv(os.Environ())
			command := args[0]
			if resolved, err := envutil.LookPath(command, env); err == nil {
				command = resolved
			}
			child := exec.CommandContext(opCtx, command, args[1:]...)
			child.Env = env
			child.Stdin = os.Stdin
			child.Stdout = cmd.OutOrStdout()
			child.Stderr = cmd.ErrOrStderr()
			runErr := child.Run()

			exitCode := 0
			if runErr != nil {
				exitCode = 1
				var exitErr *exec.ExitError
				if errors.As(runErr, &exitErr) {
					exitCode = exitErr.ExitCode()
				}
			}
			op.End(runErr == nil, runErr, domain.LogContext{Fields: map[string]any{"exitCode": exitCode}})
			procLogger.Debug("command finished", zap.String("path", command), zap.Int("exitCode", exitCode))
			if collector, err := opts.manager.Metrics(); err == nil {
				collector.RecordMemoryUsage(operation)
			}

			if runErr == nil {
				return nil
			}
			if snapshotOnFailed {
				if snapshot, err := opts.manager.CreateSnapshot(ctx, workspace, operation, runErr); err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "diagnostic snapshot %s (obskit prompt --snapshot %s)\n", snapshot.ID, snapshot.ID)
				}
			}
			if exitCode <= 0 {
				exitCode = 1
			}
			return exitSilent(exitCode)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&name, "name", "", "operation name (default: run_<command>)")
	cmd.Flags().BoolVar(&snapshotOnFailed, "snapshot-on-failure", true, "take a diagnostic snapshot when the command fails")
	return cmd
}

func workspaceName(opts *cliOptions, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	dir := opts.cfg.Diagnostics.WorkspaceDir
	if dir == "" {
		return ""
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Base(dir)
}
