// Package capture grabs the primary display as PNG bytes by shelling out to
// the platform's screenshot tool.
package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/grovetools/tracker/command"
	"github.com/grovetools/tracker/errors"
)

// DefaultTimeout bounds a single screenshot subprocess.
const DefaultTimeout = 15 * time.Second

// DisplayCapture captures the primary display.
type DisplayCapture interface {
	Capture(ctx context.Context) ([]byte, error)
}

// tool builds the command that writes a PNG of the primary display to out.
type tool struct {
	name  string
	build func(out string) command.Spec
}

// ShellCapture is a DisplayCapture backed by a platform screenshot tool.
// The tool is chosen once, at construction.
type ShellCapture struct {
	runner  command.Runner
	tool    tool
	timeout time.Duration
	tempDir string
}

var _ DisplayCapture = (*ShellCapture)(nil)

// LookPathFunc reports whether an executable is available.
type LookPathFunc func(name string) (string, error)

// NewShellCapture selects the screenshot tool for platform (a GOOS value).
func NewShellCapture(runner command.Runner, platform string) (*ShellCapture, error) {
	return newShellCapture(runner, platform, exec.LookPath)
}

func newShellCapture(runner command.Runner, platform string, lookPath LookPathFunc) (*ShellCapture, error) {
	t, err := selectTool(platform, lookPath)
	if err != nil {
		return nil, err
	}
	return &ShellCapture{
		runner:  runner,
		tool:    t,
		timeout: DefaultTimeout,
		tempDir: os.TempDir(),
	}, nil
}

// Tool returns the name of the selected screenshot program.
func (c *ShellCapture) Tool() string { return c.tool.name }

func selectTool(platform string, lookPath LookPathFunc) (tool, error) {
	switch platform {
	case "darwin":
		return tool{name: "screencapture", build: func(out string) command.Spec {
			return command.Spec{Name: "screencapture", Args: []string{"-x", "-t", "png", out}}
		}}, nil
	case "windows":
		return tool{name: "powershell", build: func(out string) command.Spec {
			return command.Spec{Name: "powershell", Args: []string{"-NoProfile", "-NonInteractive", "-Command", windowsScript(out)}}
		}}, nil
	case "linux":
		candidates := []tool{
			{name: "grim", build: func(out string) command.Spec {
				return command.Spec{Name: "grim", Args: []string{out}}
			}},
			{name: "gnome-screenshot", build: func(out string) command.Spec {
				return command.Spec{Name: "gnome-screenshot", Args: []string{"-f", out}}
			}},
			{name: "import", build: func(out string) command.Spec {
				return command.Spec{Name: "import", Args: []string{"-window", "root", out}}
			}},
		}
		// grim only works under Wayland
		if os.Getenv("WAYLAND_DISPLAY") == "" {
			candidates = candidates[1:]
		}
		for _, c := range candidates {
			if _, err := lookPath(c.name); err == nil {
				return c, nil
			}
		}
		return tool{}, errors.Unsupported("screenshot capture", platform).
			WithDetail("hint", "install gnome-screenshot, ImageMagick (import) or grim")
	}
	return tool{}, errors.Unsupported("screenshot capture", platform)
}

func windowsScript(out string) string {
	return fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms,System.Drawing; `+
		`$b=[System.Windows.Forms.Screen]::PrimaryScreen.Bounds; `+
		`$bmp=New-Object System.Drawing.Bitmap $b.Width,$b.Height; `+
		`$g=[System.Drawing.Graphics]::FromImage($bmp); `+
		`$g.CopyFromScreen($b.Location,[System.Drawing.Point]::Empty,$b.Size); `+
		`$bmp.Save('%s',[System.Drawing.Imaging.ImageFormat]::Png); $g.Dispose(); $bmp.Dispose()`, out)
}

// Capture runs the screenshot tool into a temp file and returns its bytes.
func (c *ShellCapture) Capture(ctx context.Context) ([]byte, error) {
	tmp, err := os.CreateTemp(c.tempDir, "tracker-capture-*.png")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCaptureFailed, "failed to create temp file")
	}
	out := tmp.Name()
	tmp.Close()
	defer os.Remove(out)

	if err := command.ValidateFileName(out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCaptureFailed, "unsafe temp path")
	}

	spec := c.tool.build(out)
	spec.Timeout = c.timeout
	if _, err := c.runner.Run(ctx, spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCaptureFailed, "screenshot tool failed").
			WithDetail("tool", c.tool.name)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCaptureFailed, "failed to read screenshot")
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeCaptureFailed, "screenshot tool produced an empty image").
			WithDetail("tool", c.tool.name)
	}
	return data, nil
}
