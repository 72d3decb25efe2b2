// Package harvest implements the composable harvesting engine, including the
// listing fetcher, content fetcher, renderer, detector, retry policy, and
// orchestrator that turn search queries into persisted and exported records.
package harvest
