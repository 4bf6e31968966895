package persistence

import _ "embed"

// SchemaSQL creates the signing schema. Every statement is idempotent.
//
//go:embed schema/signing.sql
var SchemaSQL string
