package git

import (
	"strings"
	"unicode/utf8"

	"github.com/moby/patternmatcher"
)

const (
	// DefaultMaxDiffBytes caps the diff file written to disk.
	DefaultMaxDiffBytes = 1 << 20

	// DefaultMaxPreviewChars caps the preview kept in memory and metadata.
	DefaultMaxPreviewChars = 4000

	// TruncationMarker is appended to any diff text cut at a ceiling.
	TruncationMarker = "\n\n... [diff truncated]\n"

	// NoBaselineMarker is the preview for the first capture of a session,
	// which has no earlier snapshot to diff against.
	NoBaselineMarker = "(no baseline: first capture of session)"
)

// Shaped is a diff cut down for persistence.
type Shaped struct {
	// File is what gets written to the .patch file.
	File string
	// Preview is what gets stored on the screenshot record.
	Preview string
	// Truncated is set when either File or Preview was cut.
	Truncated bool
}

// ShapeDiff applies the byte ceiling to the file body and the character
// ceiling to the preview. Non-positive limits select the defaults.
func ShapeDiff(diff string, maxBytes, maxPreview int) Shaped {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDiffBytes
	}
	if maxPreview <= 0 {
		maxPreview = DefaultMaxPreviewChars
	}

	var s Shaped
	if len(diff) > maxBytes {
		// Cut on a rune boundary so the file stays valid UTF-8.
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(diff[cut]) {
			cut--
		}
		s.File = diff[:cut] + TruncationMarker
		s.Truncated = true
	} else {
		s.File = diff
	}

	if utf8.RuneCountInString(diff) > maxPreview {
		s.Preview = string([]rune(diff)[:maxPreview]) + TruncationMarker
		s.Truncated = true
	} else {
		s.Preview = diff
	}
	return s
}

// FilterDiff drops every per-file section whose path matches one of the
// exclude patterns (.dockerignore syntax). With no patterns the diff is
// returned unchanged.
func FilterDiff(diff string, excludes []string) (string, error) {
	if len(excludes) == 0 || diff == "" {
		return diff, nil
	}
	pm, err := patternmatcher.New(excludes)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, section := range splitSections(diff) {
		path := sectionPath(section)
		if path != "" {
			excluded, err := pm.MatchesOrParentMatches(path)
			if err != nil {
				return "", err
			}
			if excluded {
				continue
			}
		}
		b.WriteString(section)
	}
	return b.String(), nil
}

// splitSections splits a multi-file diff at each "diff --git" header.
// Any preamble before the first header is kept as its own section.
func splitSections(diff string) []string {
	var sections []string
	start := 0
	for i := 0; i < len(diff); {
		next := strings.Index(diff[i:], "\ndiff --git ")
		if next < 0 {
			break
		}
		cut := i + next + 1
		if cut > start {
			sections = append(sections, diff[start:cut])
		}
		start = cut
		i = cut
	}
	return append(sections, diff[start:])
}

// sectionPath extracts the post-image path from a "diff --git a/x b/x" header.
func sectionPath(section string) string {
	if !strings.HasPrefix(section, "diff --git ") {
		return ""
	}
	header := section
	if nl := strings.IndexByte(section, '\n'); nl >= 0 {
		header = section[:nl]
	}
	idx := strings.LastIndex(header, " b/")
	if idx < 0 {
		return ""
	}
	return header[idx+3:]
}
