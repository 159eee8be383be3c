// Package services (re)activates the file-server daemons whose protocols a
// share was configured for, over the init system's D-Bus interface. Only the
// services of actually configured protocols are ever touched.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coreos/go-systemd/v22/dbus"
)

type dbusConn interface {
	ReloadOrRestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

type connFactory func(ctx context.Context) (dbusConn, error)

// Handler is the principal implementation of the service controller.
type Handler struct {
	newConn connFactory
}

// NewHandler returns a pointer to a new service [Handler] speaking to the
// system init daemon over D-Bus.
func NewHandler() *Handler {
	return &Handler{
		newConn: func(ctx context.Context) (dbusConn, error) {
			conn, err := dbus.NewWithContext(ctx)
			if err != nil {
				return nil, fmt.Errorf("(services) failed to connect: %w", err)
			}

			return conn, nil
		},
	}
}

// ReloadOrRestart reloads (or, where not reloadable, restarts) the given
// units, waiting for each queued job to settle before moving on.
func (h *Handler) ReloadOrRestart(ctx context.Context, units ...string) error {
	conn, err := h.newConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, unit := range units {
		resultChan := make(chan string, 1)

		if _, err := conn.ReloadOrRestartUnitContext(ctx, unit, "replace", resultChan); err != nil {
			return fmt.Errorf("(services) failed to reload %s: %w", unit, err)
		}

		select {
		case result := <-resultChan:
			if result != "done" {
				return fmt.Errorf("(services) %w: %s: %s", ErrServiceFailed, unit, result)
			}
		case <-ctx.Done():
			return fmt.Errorf("(services) %w", ctx.Err())
		}

		slog.Info("Reactivated service.", "unit", unit)
	}

	return nil
}
