// Package server hosts the Fiber HTTP service, request middleware chain, and
// kind registry glue that binds each configured entity kind to its pipeline.
// It also owns the upstream HTTP client and the Fetcher implementation the
// pipelines use on a cache miss. Keep exports narrow and accept explicit
// dependencies so tests can build an app without touching the real disk.
package server
