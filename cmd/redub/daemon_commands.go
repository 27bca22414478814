package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"redub/internal/api"
	"redub/internal/daemonctl"
	"redub/internal/daemonrun"
	"redub/internal/queue"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the redub daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}, 10*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.Launched {
				fmt.Fprintln(out, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(out, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			default:
				fmt.Fprintln(out, orDefault(result.Message, "Start request sent"))
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the redub daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, collaborator and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil && !ctx.jsonOutput() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the redub daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	return cmd
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	writeSection(out, "Daemon", colorize)
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	if status.Workflow.CurrentTask != nil {
		task := status.Workflow.CurrentTask
		fmt.Fprintln(out, renderStatusLine("Current task", statusInfo, fmt.Sprintf("%s %s %d%%", task.Kind, task.ID, task.Progress), colorize))
	}
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}
	if status.DroppedEvents > 0 {
		fmt.Fprintln(out, renderStatusLine("Dropped events", statusWarn, strconv.FormatInt(status.DroppedEvents, 10), colorize))
	}
	fmt.Fprintln(out)

	if len(status.Workflow.StageHealth) > 0 {
		writeSection(out, "Collaborators", colorize)
		for _, h := range status.Workflow.StageHealth {
			fmt.Fprintln(out, renderStatusLine(h.Name, healthKind(h), h.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	writeSection(out, "Dependencies", colorize)
	for _, dep := range status.Dependencies {
		detail := dep.Command
		if !dep.Available && dep.Detail != "" {
			detail = dep.Detail
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, dependencyKind(dep), detail, colorize))
	}
	fmt.Fprintln(out)

	writeSection(out, "Queue", colorize)
	fmt.Fprint(out, renderTable([]string{"Status", "Count"}, queueStatRows(status.Workflow.QueueStats), 2))
}

func queueStatRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{string(status), strconv.Itoa(stats[string(status)])})
	}
	extra := make([]string, 0)
	for name := range stats {
		if _, ok := queue.ParseStatus(name); !ok {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		rows = append(rows, []string{name, strconv.Itoa(stats[name])})
	}
	return rows
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
