// Package migrations carries the SQLite schema for conversations, bans and
// the payment ledger, applied in order by golang-migrate at startup.
package migrations

import "embed"

// FS exposes the numbered up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
