// Package postgres provides the PostgreSQL implementation of
// store.EntryStore, used when several service instances share one cache.
// Queries go through database/sql with the pgx stdlib driver and driver
// errors are translated to store errors by MapError.
package postgres
