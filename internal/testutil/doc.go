// Package testutil provides deterministic stand-ins for the clock and run
// ID generator so scenario runs are byte-for-byte reproducible.
package testutil
