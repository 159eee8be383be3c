package fsprov

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeRunner struct {
	calls   [][]string
	outputs map[string]string
	errors  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	argv := append([]string{name}, args...)
	f.calls = append(f.calls, argv)

	key := strings.Join(argv, " ")

	return f.outputs[key], f.errors[key]
}

func (f *fakeRunner) called(prefix string) bool {
	for _, argv := range f.calls {
		if strings.HasPrefix(strings.Join(argv, " "), prefix) {
			return true
		}
	}

	return false
}

type fakeUnix struct {
	fsType int64
}

func (f *fakeUnix) Statfs(_ string, buf *unix.Statfs_t) error {
	buf.Type = f.fsType

	return nil
}

func newTestMountTable(t *testing.T, content string) *linefile.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fstab")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return linefile.NewStore(path, MountTableKey, &schema.OS{})
}

// TestProvision_Success verifies the format-readback-register-mount sequence
// and that re-provisioning never duplicates the mount-table entry.
func TestProvision_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outputs: map[string]string{
		"blkid -s UUID -o value /dev/pool0/data": "e5a3f1c7-9b2d-4f60-8a11-0d2c6b7e4a90",
	}}
	mountTable := newTestMountTable(t, "/dev/sda1 / ext4 defaults 0 1\n")

	handler := NewHandler(runner, &fakeUnix{}, mountTable)

	mounted, err := handler.Provision(context.Background(),
		"/dev/pool0/data", schema.FilesystemXFS, "/mnt/pool0")
	require.NoError(t, err)

	assert.Equal(t, "e5a3f1c7-9b2d-4f60-8a11-0d2c6b7e4a90", mounted.UUID)
	assert.True(t, runner.called("mkfs.xfs -f /dev/pool0/data"))
	assert.True(t, runner.called("mount -a"))

	// A second provisioning run must replace, not duplicate, the entry.
	_, err = handler.Provision(context.Background(),
		"/dev/pool0/data", schema.FilesystemXFS, "/mnt/pool0")
	require.NoError(t, err)

	lines, err := mountTable.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/dev/sda1 / ext4 defaults 0 1",
		"UUID=e5a3f1c7-9b2d-4f60-8a11-0d2c6b7e4a90 /mnt/pool0 xfs defaults 0 0",
	}, lines)
}

// TestProvision_FormatFailure verifies that a failed format is fatal and
// leaves the mount table untouched.
func TestProvision_FormatFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		outputs: map[string]string{},
		errors:  map[string]error{"mkfs.ext4 -F /dev/pool0/data": assert.AnError},
	}
	mountTable := newTestMountTable(t, "")

	handler := NewHandler(runner, &fakeUnix{}, mountTable)

	_, err := handler.Provision(context.Background(),
		"/dev/pool0/data", schema.FilesystemExt4, "/mnt/pool0")
	require.ErrorIs(t, err, ErrFormatFailed)

	lines, err := mountTable.Lines()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

// TestProvision_NoUUID verifies that an unreadable UUID is fatal, since the
// mount-table entry is keyed by it.
func TestProvision_NoUUID(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outputs: map[string]string{
		"blkid -s UUID -o value /dev/pool0/data": "",
	}}

	handler := NewHandler(runner, &fakeUnix{}, newTestMountTable(t, ""))

	_, err := handler.Provision(context.Background(),
		"/dev/pool0/data", schema.FilesystemXFS, "/mnt/pool0")
	require.ErrorIs(t, err, ErrFormatFailed)
}

// TestTypeOf verifies the filesystem-type probe by superblock magic.
func TestTypeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		magic    int64
		expected schema.FilesystemType
	}{
		{"xfs", unix.XFS_SUPER_MAGIC, schema.FilesystemXFS},
		{"ext4", unix.EXT4_SUPER_MAGIC, schema.FilesystemExt4},
		{"btrfs", unix.BTRFS_SUPER_MAGIC, schema.FilesystemBtrfs},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewHandler(&fakeRunner{}, &fakeUnix{fsType: tt.magic}, nil)

			fsType, err := handler.TypeOf("/mnt/pool0")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fsType)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		handler := NewHandler(&fakeRunner{}, &fakeUnix{fsType: 0x1badface}, nil)

		_, err := handler.TypeOf("/mnt/pool0")
		require.ErrorIs(t, err, schema.ErrUnknownFilesystem)
	})
}

// TestEnsureMountOption verifies that a missing option is durably added
// exactly once and triggers a remount, while a present option is a no-op.
func TestEnsureMountOption(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outputs: map[string]string{}}
	mountTable := newTestMountTable(t,
		"UUID=abc /mnt/pool0 xfs defaults 0 0\nUUID=def /other ext4 defaults 0 0\n")

	handler := NewHandler(runner, &fakeUnix{}, mountTable)

	changed, err := handler.EnsureMountOption(context.Background(), "/mnt/pool0", "prjquota")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, runner.called("mount -o remount /mnt/pool0"))

	changed, err = handler.EnsureMountOption(context.Background(), "/mnt/pool0", "prjquota")
	require.NoError(t, err)
	assert.False(t, changed)

	lines, err := mountTable.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"UUID=def /other ext4 defaults 0 0",
		"UUID=abc /mnt/pool0 xfs defaults,prjquota 0 0",
	}, lines)
}

// TestEnsureMountOption_NoEntry verifies failure for unmanaged mountpoints.
func TestEnsureMountOption_NoEntry(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeRunner{}, &fakeUnix{}, newTestMountTable(t, ""))

	_, err := handler.EnsureMountOption(context.Background(), "/mnt/pool0", "prjquota")
	require.ErrorIs(t, err, ErrMountFailed)
}
