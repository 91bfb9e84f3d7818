package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		version       string
		commit        string
		buildDate     string
		wantVersion   string
		wantBuildDate string
	}{
		{
			name:          "release build",
			version:       "v1.2.3",
			commit:        "abcdef0123456789",
			buildDate:     "2026-03-01T10:00:00Z",
			wantVersion:   "v1.2.3",
			wantBuildDate: "2026-03-01 10:00:00 UTC",
		},
		{
			name:          "non timestamp build date is kept",
			version:       "v0.1.0",
			commit:        "abc",
			buildDate:     "yesterday",
			wantVersion:   "v0.1.0",
			wantBuildDate: "yesterday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info := versionInfo(tt.version, tt.commit, tt.buildDate)
			assert.Equal(t, tt.wantVersion, info.Version)
			assert.Equal(t, tt.commit, info.Commit)
			assert.Equal(t, tt.wantBuildDate, info.BuildDate)
			assert.Equal(t, runtime.Version(), info.GoVersion)
			assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
		})
	}
}

func TestDevVersionUsesCommitPrefix(t *testing.T) {
	t.Parallel()

	info := versionInfo("dev", "0123456789abcdef", "unknown")
	assert.Equal(t, "build-01234567", info.Version)
	assert.True(t, strings.HasPrefix(UserAgent(), "thv-docs-cache/"))
}
