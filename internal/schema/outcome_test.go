package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWarnings verifies that only degraded outcomes are filtered out of a
// mixed slice of stage results.
func TestWarnings(t *testing.T) {
	t.Parallel()

	outcomes := []Outcome{
		Success("group"),
		Warning("acl", "filesystem not capable", nil),
		Success("exports"),
		Warning("quota", "limit not set", errors.New("exit status 1")),
	}

	warnings := Warnings(outcomes)
	require.Len(t, warnings, 2)

	assert.Equal(t, "acl", warnings[0].Stage)
	assert.Equal(t, "quota", warnings[1].Stage)
}

// TestOutcome_String verifies the reporting format of the tagged outcomes.
func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "group: success", Success("group").String())
	assert.Equal(t, "acl: warning: not capable", Warning("acl", "not capable", nil).String())
	assert.Equal(t, "dir: fatal: cannot create (denied)",
		Fatal("dir", "cannot create", errors.New("denied")).String())
}
