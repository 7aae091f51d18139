// Package testdb provides helpers for tests that need a real PostgreSQL
// database. Tests using it are skipped unless STUDYCACHE_TEST_DATABASE_URL
// points at a disposable database.
package testdb
