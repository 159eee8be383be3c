package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	units   []string
	results map[string]string
	err     error
	closed  bool
}

func (f *fakeConn) ReloadOrRestartUnitContext(_ context.Context, name string, _ string, ch chan<- string) (int, error) {
	f.units = append(f.units, name)

	if f.err != nil {
		return 0, f.err
	}

	result, exists := f.results[name]
	if !exists {
		result = "done"
	}
	ch <- result

	return 1, nil
}

func (f *fakeConn) Close() {
	f.closed = true
}

func newTestHandler(conn *fakeConn) *Handler {
	return &Handler{
		newConn: func(_ context.Context) (dbusConn, error) {
			return conn, nil
		},
	}
}

// TestReloadOrRestart_Success verifies that all given units are reloaded in
// order and the connection is closed afterwards.
func TestReloadOrRestart_Success(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	handler := newTestHandler(conn)

	err := handler.ReloadOrRestart(context.Background(), "smbd.service", "nmbd.service")
	require.NoError(t, err)

	assert.Equal(t, []string{"smbd.service", "nmbd.service"}, conn.units)
	assert.True(t, conn.closed)
}

// TestReloadOrRestart_JobFailure verifies that a job settling in a non-done
// state surfaces [ErrServiceFailed].
func TestReloadOrRestart_JobFailure(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{results: map[string]string{"nfs-server.service": "failed"}}
	handler := newTestHandler(conn)

	err := handler.ReloadOrRestart(context.Background(), "nfs-server.service")
	require.ErrorIs(t, err, ErrServiceFailed)
	assert.True(t, conn.closed)
}
