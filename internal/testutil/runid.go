package testutil

// FixedRunIDGenerator returns the same run ID every time.
//
// Scenario runs use it so stored entries and golden snapshots do not depend
// on wall-clock UUIDs.
//
// Unlike harness.FixedGenerator which returns IDs in sequence, this generator
// never runs out.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id.
//
// The ID is typically set in the scenario YAML:
//
//	run_id: "scenario-calc-001"
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID.
//
// Implements harness.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
