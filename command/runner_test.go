package command

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/tracker/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based runner tests need a POSIX sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	res, err := r.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "printf hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	res, err := r.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCommandFailed))
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "oops")
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	start := time.Now()
	_, err := r.Run(context.Background(), Spec{
		Name:    "sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCommandTimeout))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunMissingExecutable(t *testing.T) {
	r := NewRunner()

	_, err := r.Run(context.Background(), Spec{Name: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCommandNotFound))
}

func TestRunEmptyName(t *testing.T) {
	_, err := NewRunner().Run(context.Background(), Spec{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestValidateGitRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"commit hash", "3f1c2a9b8e", false},
		{"branch with slash", "feature/capture", false},
		{"upstream shorthand", "@{u}", false},
		{"empty", "", true},
		{"option injection", "--output=/tmp/x", true},
		{"whitespace", "main branch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGitRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGitRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFileName(t *testing.T) {
	assert.NoError(t, ValidateFileName("/tmp/screens/shot.png"))
	assert.Error(t, ValidateFileName(""))
	assert.Error(t, ValidateFileName("../etc/passwd"))
	assert.Error(t, ValidateFileName("a;rm -rf"))
}
