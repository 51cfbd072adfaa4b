package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	assert.True(t, IsVersionGreaterOrEqualThan("1.0.0", "1.0.0"))
	assert.True(t, IsVersionGreaterOrEqualThan("1.2.0", "1.0.0"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.9.0", "1.0.0"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.0.0-dev", "1.0.0"))
}

func TestString(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version = "0.3.0"
	GitCommit = "unknown"
	assert.Equal(t, "0.3.0", String())

	GitCommit = "abcdef1234567890"
	assert.Equal(t, "0.3.0-abcdef12", String())
}
