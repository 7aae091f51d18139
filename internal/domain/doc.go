// Package domain contains the core entities of the study cache: logical
// query keys and states as tracked by the fetch layer, the durable cache
// entries they are persisted as, and flashcard review state. It has no
// knowledge of storage engines or transports.
package domain
