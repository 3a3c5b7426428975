// Package generator turns a source tree into a directory of rendered HTML
// pages and serves individual pages back out of that directory.
//
// The default implementation renders Markdown with goldmark and plain text
// (README, rdoc, txt) as preformatted blocks. A README, when present, becomes
// the index page; otherwise the index lists every generated page.
package generator
