//go:build linux

package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// busConn adapts *dbus.Conn to unitManager.
type busConn struct{ *dbus.Conn }

func dialUser(ctx context.Context) (unitManager, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd user manager: %w", err)
	}
	return busConn{conn}, nil
}

func (c busConn) EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []enableChange, error) {
	carries, changes, err := c.Conn.EnableUnitFilesContext(ctx, files, runtime, force)
	out := make([]enableChange, 0, len(changes))
	for _, ch := range changes {
		out = append(out, enableChange{Type: ch.Type, Filename: ch.Filename, Destination: ch.Destination})
	}
	return carries, out, err
}

func (c busConn) DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) error {
	_, err := c.Conn.DisableUnitFilesContext(ctx, files, runtime)
	return err
}

func (c busConn) StartUnitContext(ctx context.Context, name, mode string) error {
	_, err := c.Conn.StartUnitContext(ctx, name, mode, nil)
	return err
}

func (c busConn) RestartUnitContext(ctx context.Context, name, mode string) error {
	_, err := c.Conn.RestartUnitContext(ctx, name, mode, nil)
	return err
}

func (c busConn) StopUnitContext(ctx context.Context, name, mode string) error {
	_, err := c.Conn.StopUnitContext(ctx, name, mode, nil)
	return err
}

func (c busConn) GetServicePropertiesContext(ctx context.Context, name string) (map[string]any, error) {
	return c.Conn.GetUnitTypePropertiesContext(ctx, name, "Service")
}
