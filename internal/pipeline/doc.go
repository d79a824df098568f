// Package pipeline resolves image descriptors through the override, disk and
// network tiers. One Pipeline serves one entity kind; all pipelines share the
// same memory cache, disk cache and cover store instances. Cache tier failures
// are logged and skipped; only invalid descriptors and fetch failures reach
// the caller.
package pipeline
