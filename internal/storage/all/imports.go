// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories and DDL type mappers with the storage package:
//
//   - "postgres" (promoetl/internal/storage/postgres)
//   - "mssql"    (promoetl/internal/storage/mssql)
//   - "sqlite"   (promoetl/internal/storage/sqlite)
//
// Typical usage (in cmd/promoetl/main.go):
//
//	import _ "promoetl/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn})
//
// A binary that needs only a subset of backends can import those packages
// directly instead.
package all

import (
	_ "promoetl/internal/storage/mssql"
	_ "promoetl/internal/storage/postgres"
	_ "promoetl/internal/storage/sqlite"
)
