package git

import (
	"context"
	"strconv"
	"strings"
)

// maxCommits caps the unpushed commit list carried on a State.
const maxCommits = 20

// State is the branch and divergence metadata attached to a screenshot.
// Upstream fields stay empty when the branch tracks nothing.
type State struct {
	Branch     string   `json:"branch,omitempty"`
	HeadCommit string   `json:"headCommit,omitempty"`
	Upstream   string   `json:"upstream,omitempty"`
	Ahead      *int     `json:"ahead,omitempty"`
	Behind     *int     `json:"behind,omitempty"`
	Commits    []string `json:"commits,omitempty"`
	Dirty      bool     `json:"dirty"`
	Error      string   `json:"error,omitempty"`
}

// GetState reads branch, HEAD and upstream divergence. Failures are recorded
// on State.Error rather than returned, so callers always get a value.
func (r *Reader) GetState(ctx context.Context, repoPath string) State {
	var st State

	out, err := r.run(ctx, repoPath, "status", "--porcelain=v2", "--branch")
	if err != nil {
		st.Error = err.Error()
		return st
	}
	parseStatus(out, &st)

	if st.Upstream != "" && st.Ahead != nil && *st.Ahead > 0 {
		log, err := r.git(ctx, repoPath, "log", "--oneline", "-n", strconv.Itoa(maxCommits), "@{upstream}..HEAD")
		if err == nil {
			st.Commits = splitLines(log)
		}
	}
	return st
}

// parseStatus fills st from `git status --porcelain=v2 --branch` output.
func parseStatus(output string, st *State) {
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "# ") {
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			switch parts[1] {
			case "branch.oid":
				if parts[2] != "(initial)" {
					st.HeadCommit = parts[2]
				}
			case "branch.head":
				st.Branch = parts[2]
			case "branch.upstream":
				st.Upstream = parts[2]
			case "branch.ab":
				// format is +<ahead> -<behind>
				if ahead, err := strconv.Atoi(strings.TrimPrefix(parts[2], "+")); err == nil {
					st.Ahead = &ahead
				}
				if len(parts) > 3 {
					if behind, err := strconv.Atoi(strings.TrimPrefix(parts[3], "-")); err == nil {
						st.Behind = &behind
					}
				}
			}
			continue
		}

		// Any entry line (changed, renamed, unmerged, untracked) means dirty.
		st.Dirty = true
	}
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
