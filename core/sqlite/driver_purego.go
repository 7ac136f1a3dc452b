//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)

// modernc applies _pragma parameters on every new connection.
func pragmaParam(p pragma) string {
	return "_pragma=" + p.name + "(" + p.value + ")"
}
