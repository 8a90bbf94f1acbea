package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/grovetools/tracker/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err chosen by its error code and returns err
// unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	var te *errors.TrackerError
	stderrors.As(err, &te)
	detail := func(key string) interface{} {
		if te == nil || te.Details == nil {
			return nil
		}
		return te.Details[key]
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintln(h.Out, "✗ Configuration not found. Create a tracker.yml with at least tracker.snapshot_interval.")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "✗ Invalid configuration: %s\n", message(err, te))
		fmt.Fprintln(h.Out, "Run 'tracker config validate' for details.")

	case errors.ErrCodeAlreadyRunning:
		fmt.Fprintf(h.Out, "✗ %s\n", message(err, te))
		fmt.Fprintln(h.Out, "Use 'tracker list' to see active sessions.")

	case errors.ErrCodeNotRunning:
		fmt.Fprintf(h.Out, "✗ %s\n", message(err, te))
		if socket := detail("socket"); socket != nil {
			fmt.Fprintf(h.Out, "No daemon answered on %v\n", socket)
		}

	case errors.ErrCodePermissionDenied:
		fmt.Fprintf(h.Out, "✗ Permission denied: %s\n", message(err, te))
		if hint := detail("hint"); hint != nil {
			fmt.Fprintf(h.Out, "%v\n", hint)
		}

	case errors.ErrCodeUnsupportedPlatform:
		fmt.Fprintf(h.Out, "✗ Not supported on this platform: %s\n", message(err, te))

	case errors.ErrCodeCommandNotFound:
		fmt.Fprintf(h.Out, "✗ Required command not found: %v\n", detail("command"))

	default:
		fmt.Fprintf(h.Out, "✗ Error: %v\n", err)
	}

	if h.Verbose && te != nil {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", te.ToJSON())
	}
	return err
}

func message(err error, te *errors.TrackerError) string {
	if te != nil {
		return te.Message
	}
	return err.Error()
}
