package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildInfo(settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
}

func TestReadInfo(t *testing.T) {
	tests := []struct {
		name       string
		override   string
		read       func() (*debug.BuildInfo, bool)
		wantCommit string
		wantDirty  bool
	}{
		{
			name:       "override wins and is shortened",
			override:   "0123456789abcdef",
			read:       buildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "ffffffffffff"}),
			wantCommit: "01234567",
		},
		{
			name: "vcs revision and modified flag",
			read: buildInfo(
				debug.BuildSetting{Key: "vcs.revision", Value: "a3f8c2d1e5b7"},
				debug.BuildSetting{Key: "vcs.modified", Value: "true"},
			),
			wantCommit: "a3f8c2d1",
			wantDirty:  true,
		},
		{
			name:       "no build info",
			read:       func() (*debug.BuildInfo, bool) { return nil, false },
			wantCommit: "dev",
		},
		{
			name:       "build info without vcs stamp",
			read:       buildInfo(),
			wantCommit: "dev",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readInfo(tt.override, tt.read)
			assert.Equal(t, tt.wantCommit, got.Commit)
			assert.Equal(t, tt.wantDirty, got.Modified)
			assert.NotEmpty(t, got.GoVersion)
		})
	}
}

func TestFull(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), AppName+"/"+GitCommit))
	assert.Equal(t, GitCommit, Get().Commit)
}
