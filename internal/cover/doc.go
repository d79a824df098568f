// Package cover defines the permanent per-entity cover store. Files live at
// CoverPath/<kind dir>/<sha1(override key)>.img, are written with temp file +
// rename semantics and are never evicted; only explicit Delete removes them.
// The Resolver performs the override lookup that precedes every other tier,
// re-checking existence on each call because other processes may delete
// covers at any time.
package cover
