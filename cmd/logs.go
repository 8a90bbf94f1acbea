package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/logging"
)

var (
	logErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	logMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	var (
		component string
		follow    bool
		tailLines int
		day       string
	)

	cmd := cli.NewStandardCommand("logs", "Show the log file of a tracker component")
	cmd.Long = `Prints the structured log of a tracker component. The daemon logs as
"trackerd", the session engine as "tracker".

Examples:
  # Follow the daemon log
  tracker logs -f

  # Last 50 engine lines from a given day
  tracker logs --component tracker --tail 50 --date 2026-03-01`

	cmd.Flags().StringVar(&component, "component", "trackerd", "Component whose log to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVar(&tailLines, "tail", -1, "Number of lines to show from the end of the log (default: all)")
	cmd.Flags().StringVar(&day, "date", "", "Day of the log file, YYYY-MM-DD (default: today)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		when := time.Now()
		if day != "" {
			parsed, err := time.ParseInLocation("2006-01-02", day, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", day, err)
			}
			when = parsed
		}
		path := logging.LogFilePath(component, when)
		if path == "" {
			return fmt.Errorf("no log directory is available")
		}

		emit := printLogText
		if cli.GetOptions(cmd).JSONOutput {
			emit = printLogJSON
		}
		w := cmd.OutOrStdout()

		var offset int64
		if f, err := os.Open(path); err == nil {
			lines, end, err := lastLines(f, tailLines)
			f.Close()
			if err != nil {
				return err
			}
			for _, line := range lines {
				emit(w, line)
			}
			offset = end
		} else if !follow {
			return fmt.Errorf("no log file at %s", path)
		}
		if !follow {
			return nil
		}

		t, err := tail.TailFile(path, tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
			Logger:    stdlog.New(io.Discard, "", 0),
		})
		if err != nil {
			return fmt.Errorf("failed to follow %s: %w", path, err)
		}
		defer t.Cleanup()

		ctx := cmd.Context()
		for {
			select {
			case <-ctx.Done():
				return t.Stop()
			case line, ok := <-t.Lines:
				if !ok {
					return t.Err()
				}
				if line.Err != nil {
					continue
				}
				emit(w, line.Text)
			}
		}
	}
	return cmd
}

// lastLines returns the final n non-empty lines of r (all of them when n is
// negative) and the number of bytes consumed.
func lastLines(r io.Reader, n int) ([]string, int64, error) {
	var (
		lines    []string
		consumed int64
	)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		consumed += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			lines = append(lines, text)
			if n >= 0 && len(lines) > n {
				lines = lines[1:]
			}
		}
		if err == io.EOF {
			return lines, consumed, nil
		}
		if err != nil {
			return nil, consumed, err
		}
	}
}

// printLogJSON re-emits a line as JSON, wrapping lines that are not.
func printLogJSON(w io.Writer, line string) {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err != nil {
		logMap = map[string]interface{}{"raw_line": line}
	}
	data, _ := json.Marshal(logMap)
	fmt.Fprintln(w, string(data))
}

// printLogText pretty-prints JSON log lines; text lines pass through.
func printLogText(w io.Writer, line string) {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err != nil {
		fmt.Fprintln(w, line)
		return
	}

	ts, _ := logMap["time"].(string)
	level, _ := logMap["level"].(string)
	msg, _ := logMap["msg"].(string)
	component, _ := logMap["component"].(string)

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		parsed, _ = time.Parse(time.RFC3339, ts)
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = logErrorStyle
	case "warning":
		levelStyle = logWarnStyle
	case "info":
		levelStyle = logInfoStyle
	default:
		levelStyle = logMutedStyle
	}

	var keys []string
	for k := range logMap {
		switch k {
		case "time", "level", "msg", "component":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", logMutedStyle.Render(k), logMap[k]))
	}

	fmt.Fprintf(w, "%s %s [%s] %s %s\n",
		parsed.Format("15:04:05"),
		levelStyle.Render(strings.ToUpper(level)),
		component,
		msg,
		strings.Join(fields, " "))
}
