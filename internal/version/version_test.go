package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	Version, Commit, BuildDate = "v1.2.0", "abc123", "2024-05-01"
	t.Cleanup(func() { Version, Commit, BuildDate = "dev", "unknown", "unknown" })

	assert.Equal(t, "version: v1.2.0\ncommit: abc123\nbuilt: 2024-05-01\n", Info())
}
