package command

import (
	"fmt"
	"regexp"
	"strings"
)

var validRef = regexp.MustCompile(`^[a-zA-Z0-9/_.^~@{}-]+$`)

// ValidateGitRef ensures a git reference is safe to pass as an argument.
func ValidateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git ref cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("git ref cannot start with '-': %s", ref)
	}
	if !validRef.MatchString(ref) {
		return fmt.Errorf("invalid git ref: %s", ref)
	}
	return nil
}

// ValidateFileName ensures file paths handed to helper tools are safe
func ValidateFileName(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Prevent directory traversal
	if strings.Contains(path, "..") {
		return fmt.Errorf("file path cannot contain '..'")
	}

	// Prevent command injection via shell metacharacters
	if strings.ContainsAny(path, ";|&$`") {
		return fmt.Errorf("file path contains invalid characters")
	}

	return nil
}
