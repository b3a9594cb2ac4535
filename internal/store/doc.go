// Package store defines interfaces for persistence dependencies (marathon,
// participant, split and asset records). Implementations live in other
// packages; this package must not import database drivers or concrete
// clients.
package store
