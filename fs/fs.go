// Package appfs embeds the assets the binaries need at runtime, starting
// with the database migrations.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
