// Package storage keeps the append-only audit trail of lifecycle
// operations (install, start, stop, ...).
//
// Two drivers exist: "file" writes JSON Lines and needs no dependencies;
// "sqlite" needs the sqlite build tag.
package storage
