// Package sqldoc implements the storage adapter as a document table in a SQL
// database. Each record is one row of the documents table holding its kind,
// id, insertion sequence, version and JSON body. PostgreSQL (through pgx) and
// SQLite (through modernc.org/sqlite) are supported; the schema for each is
// embedded and applied with goose.
//
// Saves run in a single transaction. Updates and deletes are conditional on
// the version the record had when it was loaded, and inserts on the id not
// existing yet, so concurrent writers to the same record cannot both succeed.
package sqldoc
