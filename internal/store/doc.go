// Package store persists the bill dataset as a single JSON document and
// declares the run-history repository contract. Run-history implementations
// live in other packages; this package must not import database drivers.
package store
