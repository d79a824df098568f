// Package cache implements the bounded on-disk image cache. Entries are opaque
// blobs keyed by string and stored as <StoragePath>/<sha1(key)>.<generation>.
// Writers go through an Editor (temp file + rename on Commit, temp removal on
// Abort) so a partially written entry never becomes visible; readers hold a
// Snapshot that must be closed. Size accounting and LRU order live in memory
// behind a single mutex that is never held across file I/O. The pipeline
// depends on this package for its transient tier and for the Remove step of
// cover promotion.
package cache
