// Package cache implements the render cache: rendered documentation pages are
// published to PublicPath/<request path>.html so that the static layer in
// front of the adapters can serve them without re-rendering. Writes go through
// a temp file + rename so readers never observe a partial page. There is no
// expiry; operators invalidate an entry by deleting its file.
package cache
