package ir

// Version constants for the grammar IR and generation engine.
const (
	// IRVersion is the grammar IR schema version. Bumping it changes every
	// GrammarHash, which invalidates stored corpus entries on purpose.
	IRVersion = "1"

	// EngineVersion is the cfgfuzz engine version.
	EngineVersion = "0.1.0"
)
