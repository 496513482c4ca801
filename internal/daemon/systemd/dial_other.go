//go:build !linux

package systemd

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("systemd: unsupported OS (linux only)")

func dialUser(context.Context) (unitManager, error) { return nil, errUnsupported }
