// Package migrations embeds the PostgreSQL schema and seed files.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql seeds/*.sql
var files embed.FS

// SQL holds the NNNN_name.up.sql and NNNN_name.down.sql schema files.
func SQL() fs.FS { return sub("sql") }

// Seeds holds idempotent seed files applied in name order.
func Seeds() fs.FS { return sub("seeds") }

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return f
}
