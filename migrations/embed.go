// Package migrations embeds the public-schema migration files applied at
// startup. Tenant tables are created by the provisioner, not here.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var sqlFiles embed.FS

// FS returns the embedded files rooted at this directory.
func FS() fs.FS {
	return sqlFiles
}
