package main

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsset struct {
	id   int64
	name string
}

func (a fakeAsset) GetID() int64                  { return a.id }
func (a fakeAsset) GetName() string               { return a.name }
func (a fakeAsset) GetSize() int                  { return 1024 }
func (a fakeAsset) GetBrowserDownloadURL() string { return "https://example.invalid/" + a.name }

type fakeRelease struct {
	id         int64
	tag        string
	prerelease bool
	assets     []string
}

func (r fakeRelease) GetID() int64              { return r.id }
func (r fakeRelease) GetTagName() string        { return r.tag }
func (r fakeRelease) GetDraft() bool            { return false }
func (r fakeRelease) GetPrerelease() bool       { return r.prerelease }
func (r fakeRelease) GetPublishedAt() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
func (r fakeRelease) GetReleaseNotes() string   { return "" }
func (r fakeRelease) GetName() string           { return r.tag }
func (r fakeRelease) GetURL() string            { return "https://example.invalid/releases/" + r.tag }

func (r fakeRelease) GetAssets() []selfupdate.SourceAsset {
	assets := make([]selfupdate.SourceAsset, 0, len(r.assets))
	for i, name := range r.assets {
		assets = append(assets, fakeAsset{id: r.id*10 + int64(i), name: name})
	}
	return assets
}

// releaseList serves a fixed set of releases.
type releaseList struct {
	releases []selfupdate.SourceRelease
	err      error
}

func (l *releaseList) ListReleases(context.Context, selfupdate.Repository) ([]selfupdate.SourceRelease, error) {
	return l.releases, l.err
}

func (l *releaseList) DownloadReleaseAsset(context.Context, *selfupdate.Release, int64) (io.ReadCloser, error) {
	return nil, errors.New("downloads are not served")
}

func platformBinary() string {
	name := "sim-logbook-" + runtime.GOOS + "-" + runtime.GOARCH
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

func withVersion(t *testing.T, v string) {
	t.Helper()
	orig := Version
	Version = v
	t.Cleanup(func() { Version = orig })
}

func TestUpdateServiceCheck(t *testing.T) {
	source := &releaseList{releases: []selfupdate.SourceRelease{
		fakeRelease{id: 3, tag: "v1.2.0-beta.1", prerelease: true, assets: []string{platformBinary()}},
		fakeRelease{id: 2, tag: "v1.1.0", assets: []string{platformBinary(), "sim-logbook-plan9-mips"}},
		fakeRelease{id: 1, tag: "v1.0.0", assets: []string{platformBinary()}},
	}}

	tests := []struct {
		name          string
		version       string
		wantLatest    string
		wantAvailable bool
	}{
		{"older stable build", "1.0.0", "1.1.0", true},
		{"up to date", "1.1.0", "1.1.0", false},
		{"dev build follows pre-releases", "dev", "1.2.0-beta.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.version)
			svc := &UpdateService{source: source, slug: releaseSlug}

			check, err := svc.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.version, check.Running)
			assert.Equal(t, tt.wantLatest, check.Latest)
			assert.Equal(t, tt.wantAvailable, check.Available)
			assert.Equal(t, tt.wantAvailable, svc.latest != nil)
			assert.Contains(t, check.URL, "v"+tt.wantLatest)
		})
	}
}

func TestUpdateServiceCheckNoRelease(t *testing.T) {
	withVersion(t, "1.0.0")
	source := &releaseList{releases: []selfupdate.SourceRelease{
		fakeRelease{id: 1, tag: "v2.0.0", assets: []string{"sim-logbook-plan9-mips"}},
	}}
	svc := &UpdateService{source: source, slug: releaseSlug}

	check, err := svc.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Empty(t, check.Latest)
	assert.Equal(t, "sim-logbook 1.0.0 is up to date", check.String())

	err = svc.Apply(context.Background())
	assert.ErrorIs(t, err, errNoUpdate)
}

func TestUpdateServiceCheckSourceError(t *testing.T) {
	svc := &UpdateService{source: &releaseList{err: errors.New("rate limited")}, slug: releaseSlug}
	_, err := svc.Check(context.Background())
	assert.ErrorContains(t, err, "rate limited")
}

func TestReleaseCheckString(t *testing.T) {
	c := ReleaseCheck{Running: "1.0.0", Latest: "1.1.0", Available: true, URL: "https://example.invalid/v1.1.0"}
	assert.Equal(t, "sim-logbook 1.1.0 is available (running 1.0.0): https://example.invalid/v1.1.0", c.String())
}

func TestIsStableRelease(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    bool
	}{
		{"dev is not stable", "dev", false},
		{"beta is not stable", "1.0.0-beta.1", false},
		{"rc is not stable", "2.1.0-rc.2", false},
		{"release is stable", "1.0.0", true},
		{"patch release is stable", "1.2.3", true},
		{"v prefix is stable", "v1.2.3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.version)
			assert.Equal(t, tt.want, isStableRelease())
		})
	}
}

func TestComparableVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"dev returns 0.0.0", "dev", "0.0.0"},
		{"garbage returns 0.0.0", "local-build", "0.0.0"},
		{"release passes through", "1.2.3", "1.2.3"},
		{"beta passes through", "1.0.0-beta.1", "1.0.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.version)
			assert.Equal(t, tt.want, comparableVersion())
		})
	}
}

func TestAssetFilter(t *testing.T) {
	f := assetFilter()
	assert.True(t, strings.HasPrefix(f, "sim-logbook-"+runtime.GOOS+"-"+runtime.GOARCH))
	assert.True(t, strings.HasSuffix(f, "$"))
}
