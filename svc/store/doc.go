// Package store is the PostgreSQL repository for dispatch. It serves due
// message definitions, send records, quota policies, Evolution API
// credentials and media records through pgx, using the schema in
// db/migrations.
//
// Stored values are parsed into dispatch types on the way out: dates and
// times become dispatch.Date and dispatch.TimeOfDay, phone numbers are
// normalised, and rows that fail dispatch.Definition.Validate are logged and
// skipped so the scheduler never sees them.
package store
