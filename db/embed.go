// Package db embeds the PostgreSQL schema of the cart service.
package db

import _ "embed"

// Schema creates the cart storage and order archive tables. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
