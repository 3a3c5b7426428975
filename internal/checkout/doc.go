// Package checkout implements the asynchronous checkout-and-publish job system.
//
// A checkout request is validated synchronously and handed to a Dispatcher,
// which runs the Worker either in-process (bounded pool) or in a detached
// "doc-hub worker" process. The worker fetches the working tree, generates
// documentation into a staging directory and publishes it by renaming the
// directory into the SCM registry layout. Failures leave a marker file instead.
// The request-handling process never shares memory with the worker: the
// StatusResolver observes outcomes only through the filesystem.
package checkout
