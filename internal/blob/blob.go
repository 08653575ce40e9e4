// Package blob exposes the blob storage abstraction and selects a concrete
// backend for the offsite backup archive.
package blob

import "capplan/internal/blob/core"

// Re-exported core types so callers depend on a single package.
type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
	// DriverNone disables the archive.
	DriverNone Driver = "none"
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)
