//go:build !linux

package unitctl

import "context"

type Controller struct{}

func Connect(ctx context.Context, user bool) (*Controller, error) { return nil, ErrUnsupported }

func (c *Controller) Close() error { return nil }

func (c *Controller) Status(ctx context.Context, unit string) (Status, error) {
	return Status{}, ErrUnsupported
}

func (c *Controller) Start(ctx context.Context, unit string) error   { return ErrUnsupported }
func (c *Controller) Stop(ctx context.Context, unit string) error    { return ErrUnsupported }
func (c *Controller) Restart(ctx context.Context, unit string) error { return ErrUnsupported }
