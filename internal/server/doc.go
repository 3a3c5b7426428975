// Package server hosts the Fiber HTTP service: the middleware chain (recover,
// request id, cached-page static layer), the HTML error pages, and the family
// registry that turns the configured Families into documentation adapters.
// Route groups live in the routes subpackage and receive their dependencies
// explicitly.
package server
