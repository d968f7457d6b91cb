//go:build linux

package unitctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Controller talks to the systemd manager over D-Bus.
type Controller struct {
	conn *dbus.Conn
}

// Connect opens a connection to the system manager, or to the user manager
// when user is set.
func Connect(ctx context.Context, user bool) (*Controller, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewWithContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Controller{conn: conn}, nil
}

func (c *Controller) Close() error {
	c.conn.Close()
	return nil
}

func (c *Controller) Status(ctx context.Context, unit string) (Status, error) {
	unit = NormalizeUnit(unit)
	props, err := c.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnit(err) {
			return Status{Unit: unit, LoadState: "not-found"}, nil
		}
		return Status{}, fmt.Errorf("status of %s: %w", unit, err)
	}
	var svc map[string]any
	if strings.HasSuffix(unit, ".service") {
		// Best effort: MainPID and memory are informational.
		svc, _ = c.conn.GetUnitTypePropertiesContext(ctx, unit, "Service")
	}
	return statusFromProps(unit, props, svc), nil
}

func (c *Controller) Start(ctx context.Context, unit string) error {
	return c.job(ctx, "start", unit, c.conn.StartUnitContext)
}

func (c *Controller) Stop(ctx context.Context, unit string) error {
	return c.job(ctx, "stop", unit, c.conn.StopUnitContext)
}

func (c *Controller) Restart(ctx context.Context, unit string) error {
	return c.job(ctx, "restart", unit, c.conn.RestartUnitContext)
}

type jobFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// job queues a unit job and waits for systemd to report its result.
func (c *Controller) job(ctx context.Context, action, unit string, fn jobFunc) error {
	unit = NormalizeUnit(unit)
	done := make(chan string, 1)
	if _, err := fn(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("%s %s: %w", action, unit, err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", action, unit, ctx.Err())
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("%s %s: job %s", action, unit, result)
		}
		return nil
	}
}

func isNoSuchUnit(err error) bool {
	s := err.Error()
	return strings.Contains(s, "NoSuchUnit") || strings.Contains(s, "not loaded")
}
