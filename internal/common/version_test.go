package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersionFile(t *testing.T) {
	info := ParseVersionFile(strings.NewReader(`
# generated by the release script
version: 0.4.1
build: 2026-10-01T09:30:00Z
commit: a1b2c3d
ignored line
`))
	assert.Equal(t, "0.4.1", info.Version)
	assert.Equal(t, "2026-10-01T09:30:00Z", info.Build)
	assert.Equal(t, "a1b2c3d", info.Commit)
}

func TestParseVersionFile_Empty(t *testing.T) {
	assert.Equal(t, VersionInfo{}, ParseVersionFile(strings.NewReader("")))
}

func TestCurrentVersion(t *testing.T) {
	info := CurrentVersion()
	assert.Equal(t, GetVersion(), info.Version)
	assert.Equal(t, GetBuild(), info.Build)
	assert.Equal(t, GetGitCommit(), info.Commit)
	assert.Contains(t, GetFullVersion(), "commit: "+info.Commit)
}
