package sbtree

import "errors"

// The failure kinds from §7 are represented as sentinel errors rather
// than a closed internal enum (its NotFound and Exhausted kinds are not
// errors: Get and Iterator.Next report them as a false bool). Every
// failure path already produces a Go
// error (from the storage back-end or a capacity/config check), so wrapping
// it once with fmt.Errorf("%w", ...) at the point of detection is the
// idiomatic equivalent of the reference's BLTErr-style return code, without
// a second translation step that would never be exercised.
var (
	// ErrStorageFailure wraps any error returned by the storage back-end
	// during a read or write (§7 StorageFailure).
	ErrStorageFailure = errors.New("sbtree: storage failure")

	// ErrOutOfTreeCapacity is returned by Put when a new root would push the
	// tree past MaxLevel.
	ErrOutOfTreeCapacity = errors.New("sbtree: out of tree capacity")

	// ErrBufferFull is returned at Open when the configured buffer pool has
	// no slot available for eviction (numPages < 2).
	ErrBufferFull = errors.New("sbtree: buffer pool has no evictable slot")

	// ErrInvalidConfig is returned at Open when Config.Validate rejects the
	// supplied sizes.
	ErrInvalidConfig = errors.New("sbtree: invalid configuration")

	// ErrKeySize and ErrDataSize are returned by Put/Get when the caller
	// supplies a key or payload of the wrong width.
	ErrKeySize  = errors.New("sbtree: key has wrong size")
	ErrDataSize = errors.New("sbtree: data has wrong size")
)
