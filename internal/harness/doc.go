// Package harness runs grammars against entropy inputs outside of unit tests.
//
// Two drivers share the engine and store:
//
//   - Scenarios (Run) derive fixed cases from a YAML file into a fresh
//     in-memory store, with a deterministic clock and run ID, and evaluate
//     assertions over the results. Golden files pin the derived cases.
//   - Campaigns (Campaign.Run) derive corpus and PRNG inputs on a worker
//     pool, optionally pass each output to an oracle, and record entries and
//     findings in a persistent store.
//
// Replay re-derives stored entries to detect changes in engine behavior.
package harness
