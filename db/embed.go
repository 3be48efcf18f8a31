// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the idempotent DDL for the orders table.
//
//go:embed migrations/001_orders.sql
var Schema string
