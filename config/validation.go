package config

import (
	"fmt"
	"net/url"

	"github.com/moby/patternmatcher"

	"github.com/grovetools/tracker/errors"
)

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Tracker.SnapshotInterval <= 0 {
		return errors.ConfigInvalid("tracker.snapshot_interval is required and must be positive").
			WithDetail("field", "tracker.snapshot_interval")
	}

	positive := map[string]Duration{
		"tracker.rollup_interval":     c.Tracker.RollupInterval,
		"tracker.stop_grace":          c.Tracker.StopGrace,
		"tracker.mouse_poll_interval": c.Tracker.MousePollInterval,
		"git.timeout":                 c.Git.Timeout,
		"upload.authorize_timeout":    c.Upload.AuthorizeTimeout,
		"upload.transfer_timeout":     c.Upload.TransferTimeout,
	}
	for field, d := range positive {
		if d < 0 {
			return errors.ConfigInvalid(fmt.Sprintf("%s must not be negative", field)).
				WithDetail("field", field)
		}
	}

	if c.Git.MaxDiffBytes < 0 || c.Git.MaxPreviewChars < 0 {
		return errors.ConfigInvalid("git size ceilings must not be negative")
	}

	if len(c.Git.Exclude) > 0 {
		if _, err := patternmatcher.New(c.Git.Exclude); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid git.exclude pattern")
		}
	}

	if c.Upload.Endpoint != "" {
		u, err := url.Parse(c.Upload.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.ConfigInvalid("upload.endpoint must be an http(s) URL").
				WithDetail("endpoint", c.Upload.Endpoint)
		}
	}

	return nil
}
