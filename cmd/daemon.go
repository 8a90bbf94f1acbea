package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/command"
	"github.com/grovetools/tracker/config"
	"github.com/grovetools/tracker/git"
	"github.com/grovetools/tracker/internal/capture"
	"github.com/grovetools/tracker/internal/history"
	"github.com/grovetools/tracker/internal/input"
	"github.com/grovetools/tracker/internal/pidfile"
	"github.com/grovetools/tracker/internal/server"
	"github.com/grovetools/tracker/internal/store"
	"github.com/grovetools/tracker/internal/tracker"
	"github.com/grovetools/tracker/internal/upload"
	"github.com/grovetools/tracker/logging"
	"github.com/grovetools/tracker/pkg/paths"
	"github.com/grovetools/tracker/pkg/profiling"
	"github.com/grovetools/tracker/util/pathutil"
)

// drainTimeout bounds how long shutdown waits for in-flight uploads.
const drainTimeout = 30 * time.Second

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and manage the tracker daemon",
	}
	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	return cmd
}

// daemon is everything a running trackerd owns.
type daemon struct {
	engine  *tracker.Engine
	history *history.Store
	hook    *input.Hook
	config  *server.RunningConfig
}

func (d *daemon) close() {
	if d.history != nil {
		_ = d.history.Close()
	}
}

// buildDaemon constructs the engine and its collaborators from cfg.
func buildDaemon(cfg *config.Config, logger *logrus.Entry) (*daemon, error) {
	defer profiling.Start("daemon.build").Stop()

	root := filepath.Join(paths.DataDir(), "artifacts")
	if cfg.Storage.Root != "" {
		expanded, err := pathutil.Expand(cfg.Storage.Root)
		if err != nil {
			return nil, err
		}
		root = expanded
	}
	st, err := store.New(root)
	if err != nil {
		return nil, err
	}

	runner := command.NewRunner()
	display, err := capture.NewShellCapture(runner, runtime.GOOS)
	if err != nil {
		return nil, err
	}
	logger.WithField("tool", display.Tool()).Debug("Display capture selected")

	deps := tracker.Deps{
		Store:   st,
		Capture: display,
		Git:     git.NewReader(runner, cfg.Git.Timeout.Std()),
		Shutter: capture.NewShutter(runner, runtime.GOOS),
		Logger:  logging.NewLogger("tracker"),
	}

	if cfg.Upload.Endpoint != "" {
		deps.Uploader = upload.New(upload.NewHTTPAuthority(cfg.Upload.Endpoint,
			upload.WithToken(cfg.Upload.Token),
			upload.WithTimeouts(cfg.Upload.AuthorizeTimeout.Std(), cfg.Upload.TransferTimeout.Std()),
		))
	}

	d := &daemon{}
	if cfg.Tracker.KeyboardEnabled() {
		d.hook = input.NewPlatformHook(logging.NewLogger("input"))
		deps.Hook = d.hook
	}
	if cfg.Tracker.MouseEnabled() {
		poller, err := input.NewMousePoller(runtime.GOOS, runner)
		if err != nil {
			logger.WithError(err).Warn("Mouse polling unavailable; mouse events will not be recorded")
		} else {
			deps.MousePoller = poller
		}
	}

	span := profiling.Start("history.open")
	hist, err := history.Open(paths.HistoryDBPath())
	span.Stop()
	if err != nil {
		logger.WithError(err).Warn("Session history unavailable")
	} else {
		d.history = hist
		deps.Summaries = hist
	}

	d.engine, err = tracker.New(tracker.OptionsFromConfig(cfg), deps)
	if err != nil {
		d.close()
		return nil, err
	}
	d.config = &server.RunningConfig{
		SnapshotInterval: cfg.Tracker.SnapshotInterval.Std(),
		RollupInterval:   cfg.Tracker.RollupInterval.Std(),
		StorageRoot:      st.Root(),
		UploadsEnabled:   deps.Uploader != nil,
		StartedAt:        time.Now(),
		PID:              os.Getpid(),
	}
	return d, nil
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		Long: `Start the tracker daemon in the foreground.

On SIGINT or SIGTERM every active session is stopped and summarized, and
in-flight uploads get a bounded window to finish before exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd, "trackerd")

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			pidPath := paths.PidFilePath()
			if err := pidfile.Acquire(pidPath); err != nil {
				return err
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.WithError(err).Error("Failed to release pidfile")
				}
			}()

			d, err := buildDaemon(cfg, logger)
			if err != nil {
				return err
			}
			defer d.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cwd, err := os.Getwd(); err == nil {
				watcher, err := config.NewWatcher(cwd, 500*time.Millisecond, logger, func(next *config.Config) {
					if err := d.engine.SetOptions(tracker.OptionsFromConfig(next)); err != nil {
						logger.WithError(err).Warn("Ignoring reloaded configuration")
					}
				})
				if err != nil {
					logger.WithError(err).Debug("Configuration watcher not started")
				} else {
					go watcher.Start(ctx)
				}
			}

			sock := cfg.Server.Socket
			if sock == "" {
				sock = paths.SocketPath()
			}
			d.config.ConfigFile, _ = config.FindConfigFile(mustGetwd())
			srv := server.New(logger)
			srv.SetEngine(d.engine)
			srv.SetRunningConfig(d.config)

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.ListenAndServe(sock) }()
			logger.WithFields(logrus.Fields{"pid": os.Getpid(), "socket": sock}).Info("Starting daemon")

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("Received stop signal")
			case err := <-serveErr:
				if err != nil {
					runErr = fmt.Errorf("server error: %w", err)
				}
			}

			// No new requests may start a session once StopAll begins.
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Server shutdown error")
			}

			summaries := d.engine.StopAll()
			logger.WithField("sessions", len(summaries)).Info("Stopped all sessions")

			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := d.engine.Wait(drainCtx); err != nil {
				logger.WithError(err).Warn("Detached uploads still running at exit")
			}
			return runErr
		},
	}
}

func mustGetwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(os.Interrupt); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent stop signal to process %d\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			out := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if !running {
				out.Warn("Stopped")
				os.Exit(1)
			}
			out.Success(fmt.Sprintf("Running (PID: %d)", pid))
			out.Path("Socket", socketPath(cmd))

			c, err := connect(cmd)
			if err != nil {
				return nil
			}
			defer c.Close()
			if rc, err := c.Config(cmd.Context()); err == nil {
				out.Field("Interval", rc.SnapshotInterval)
				out.Field("Uploads", rc.UploadsEnabled)
				out.Path("Storage", rc.StorageRoot)
				out.Field("Uptime", time.Since(rc.StartedAt).Round(time.Second))
			}
			return nil
		},
	}
}
