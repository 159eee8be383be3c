package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFilesystemType verifies the fixed enumerated set of filesystem
// types and their capability flags.
func TestParseFilesystemType(t *testing.T) {
	t.Parallel()

	xfs, err := ParseFilesystemType("xfs")
	require.NoError(t, err)
	assert.True(t, xfs.SupportsACL())
	assert.True(t, xfs.SupportsProjectQuota())

	ext4, err := ParseFilesystemType("ext4")
	require.NoError(t, err)
	assert.False(t, ext4.SupportsProjectQuota())

	_, err = ParseFilesystemType("zfs")
	require.ErrorIs(t, err, ErrUnknownFilesystem)
}

// TestParseProtocol verifies the fixed enumerated set of sharing protocols.
func TestParseProtocol(t *testing.T) {
	t.Parallel()

	nfs, err := ParseProtocol("nfs")
	require.NoError(t, err)
	assert.Equal(t, ProtocolNFS, nfs)

	cifs, err := ParseProtocol("cifs")
	require.NoError(t, err)
	assert.Equal(t, ProtocolCIFS, cifs)

	_, err = ParseProtocol("afp")
	require.ErrorIs(t, err, ErrUnknownProtocol)
}
