package sbtree

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// CompareFunc orders two fixed-width keys, returning negative, zero, or
// positive the way bytes.Compare does.
type CompareFunc func(a, b []byte) int

// Parameter bit flags reserved for summary indexing (§6.3). The core engine
// never consults them on its descent path; they exist so a caller can carry
// the same flag vocabulary as the reference design without the core having
// an opinion about bucket policy.
const (
	UseIndex  uint8 = 1 << 0
	UseMaxMin uint8 = 1 << 1
	UseBitmap uint8 = 1 << 2
)

// BitmapHooks is the optional capability object from the Design Notes: the
// core calls Update once per inserted key if non-nil, and never consults
// Contains itself. Both are supplied and owned by the caller; the bucket
// layout they operate on is application code.
type BitmapHooks struct {
	Update   func(key []byte, bitmap *byte)
	Contains func(bitmap byte, minKey, maxKey []byte) bool
}

// Config is the enumerated configuration from §6.3.
type Config struct {
	// PageSize is the number of bytes per persisted page (typically 512).
	PageSize int
	// NumPages is the page buffer's pool size. Must be >= 2; >= 3 enables
	// root pinning in slot 1.
	NumPages int
	// KeySize and DataSize are the fixed widths of keys and payload values.
	KeySize  int
	DataSize int
	// Parameters carries the USE_INDEX/USE_MAX_MIN/USE_BMAP bit flags.
	// The core ignores them; they are preserved for the optional bitmap
	// collaborator described in the Design Notes.
	Parameters uint8
	// Compare orders keys. Defaults to a big-endian unsigned-integer
	// comparison over the raw key bytes if nil.
	Compare CompareFunc
	// Bitmap, if non-nil, is consulted by Put after every insert.
	Bitmap *BitmapHooks
	// Logger receives structured operational logging. Defaults to
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

const (
	minPageHeaderSize = 6
	pageChildSize     = 8
	// MaxLevel bounds the number of active-path levels; a Put that would
	// grow the tree past it reports ErrOutOfTreeCapacity.
	MaxLevel = 8
)

// Validate enforces the structural preconditions from §7's BufferFull and
// the general sizing constraints implied by §3.1/§4.3. It is meant to be
// called once, at Open, so a misconfiguration never surfaces deep inside a
// Put.
func (c Config) Validate() error {
	if c.NumPages < 2 {
		return fmt.Errorf("%w: numPages must be >= 2, got %d", ErrBufferFull, c.NumPages)
	}
	if c.KeySize <= 0 {
		return fmt.Errorf("%w: keySize must be > 0", ErrInvalidConfig)
	}
	if c.DataSize <= 0 {
		return fmt.Errorf("%w: dataSize must be > 0", ErrInvalidConfig)
	}
	recordSize := c.KeySize + c.DataSize
	if c.PageSize < minPageHeaderSize+recordSize {
		return fmt.Errorf("%w: pageSize %d too small for header+one record (%d)",
			ErrInvalidConfig, c.PageSize, minPageHeaderSize+recordSize)
	}
	maxInterior := (c.PageSize - minPageHeaderSize - pageChildSize) / (c.KeySize + pageChildSize)
	if maxInterior < 1 {
		return fmt.Errorf("%w: pageSize %d too small to hold any interior separator", ErrInvalidConfig, c.PageSize)
	}
	return nil
}

func defaultCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func (c *Config) resolveDefaults() {
	if c.Compare == nil {
		c.Compare = defaultCompare
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}
