// Package migrations embeds the SQL migration files for the iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
