package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const releaseSlug = "sim-logbook/sim-logbook"

var errNoUpdate = errors.New("no update available")

// ReleaseCheck is the outcome of a release lookup.
type ReleaseCheck struct {
	Running   string
	Latest    string
	Available bool
	URL       string
}

func (c ReleaseCheck) String() string {
	if !c.Available {
		return fmt.Sprintf("sim-logbook %s is up to date", c.Running)
	}
	return fmt.Sprintf("sim-logbook %s is available (running %s): %s", c.Latest, c.Running, c.URL)
}

// UpdateService finds and installs sim-logbook releases.
type UpdateService struct {
	source selfupdate.Source
	slug   string
	latest *selfupdate.Release
}

// NewUpdateService looks releases up on GitHub.
func NewUpdateService() (*UpdateService, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create github source: %w", err)
	}
	return &UpdateService{source: source, slug: releaseSlug}, nil
}

// isStableRelease reports whether Version is a release build without a
// pre-release suffix.
func isStableRelease() bool {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return false
	}
	return v.Prerelease() == ""
}

// comparableVersion maps dev and other non-semver builds to 0.0.0 so any
// release counts as newer.
func comparableVersion() string {
	if _, err := semver.NewVersion(Version); err != nil {
		return "0.0.0"
	}
	return Version
}

// assetFilter matches the release binary for the running platform.
func assetFilter() string {
	name := fmt.Sprintf("sim-logbook-%s-%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name + "$"
}

func (s *UpdateService) newUpdater() (*selfupdate.Updater, error) {
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:  s.source,
		Filters: []string{assetFilter()},
		// dev and beta builds follow pre-releases too
		Prerelease: !isStableRelease(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return updater, nil
}

// Check looks up the newest release for this platform and remembers it for
// Apply when it is newer than the running build.
func (s *UpdateService) Check(ctx context.Context) (ReleaseCheck, error) {
	check := ReleaseCheck{Running: Version}

	updater, err := s.newUpdater()
	if err != nil {
		return check, err
	}
	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(s.slug))
	if err != nil {
		return check, fmt.Errorf("failed to detect latest version: %w", err)
	}

	s.latest = nil
	if found {
		check.Latest = latest.Version()
		check.URL = latest.URL
		if latest.GreaterThan(comparableVersion()) {
			check.Available = true
			s.latest = latest
		}
	}

	slog.Info("update check complete", "running", Version, "latest", check.Latest, "available", check.Available)
	return check, nil
}

// Apply replaces the running executable with the release found by Check.
func (s *UpdateService) Apply(ctx context.Context) error {
	if s.latest == nil {
		return fmt.Errorf("%w: run Check first", errNoUpdate)
	}

	updater, err := s.newUpdater()
	if err != nil {
		return err
	}
	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if err := updater.UpdateTo(ctx, s.latest, exe); err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}

	slog.Info("update applied", "version", s.latest.Version())
	return nil
}
