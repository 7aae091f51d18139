// Package querycache is the in-memory reactive fetch layer. It tracks the
// state of every keyed query, collapses concurrent fetches of the same key,
// serves fresh results from memory and notifies listeners on every change.
package querycache
