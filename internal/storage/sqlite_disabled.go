//go:build !sqlite

package storage

import (
	"errors"

	logx "notifyrelay/pkg/logx"
)

func openSQLite(Config, logx.Logger) (Store, error) {
	return nil, errors.New("sqlite audit store not built: rebuild with -tags sqlite")
}
