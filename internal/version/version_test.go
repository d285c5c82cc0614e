package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.InstanceID)
	assert.NotEmpty(t, info.Hostname)

	// Instance ID is stable across calls within a process.
	again := GetInfo()
	assert.Equal(t, info.InstanceID, again.InstanceID)
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "v1.2.3", GitCommit: "abc123", BuildDate: "2026-01-01"}
	s := info.String()

	assert.Contains(t, s, "gatekeeper version v1.2.3")
	assert.Contains(t, s, "abc123")
	assert.Contains(t, s, "2026-01-01")
}
