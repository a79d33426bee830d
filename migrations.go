package faucetclaim

import "embed"

// MigrationsFS holds the SQL migrations applied at boot.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
