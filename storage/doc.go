// Package storage provides implementations of core.Store. The in-memory
// variant backs tests and development; the sqlite subpackage provides the
// durable backend.
package storage
