// Package progress archives crawl events off the hot path. A Hub batches
// events on a background goroutine and fans them out to sinks that log,
// count, persist, publish or snapshot them. Publishing into a Hub never
// blocks the crawl.
package progress
