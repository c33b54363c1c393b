// Package testutil provides test doubles shared by the pipeline's package
// tests: an in-memory graph with an observable write sequence and an
// outage switch, and a resettable logical clock.
package testutil
