package store

// StatusOK is the status of an entry that derived a string. Failed
// derivations store their generation error code instead.
const StatusOK = "ok"

// Grammar is a stored grammar spec.
type Grammar struct {
	Hash      string
	Name      string
	Start     string
	Spec      string // canonical JSON of the rule set
	IRVersion string
}

// Run is one fuzz campaign against a grammar and start rule.
type Run struct {
	ID            string
	GrammarHash   string
	Start         string
	Ceiling       int64
	Seed          int64
	Oracle        string
	EngineVersion string
	Seq           int64
	Finished      bool
	Generated     int64
	Failed        int64
}

// Entry is one entropy input and what it derived.
type Entry struct {
	ID          string
	GrammarHash string
	Start       string
	Entropy     []byte
	Ceiling     int64
	Output      string
	Status      string
	Consumed    int64
	RunID       string
	Seq         int64
}

// OK reports whether the entry derived a string.
func (e Entry) OK() bool {
	return e.Status == StatusOK
}

// Finding is an entry an oracle rejected during a run.
type Finding struct {
	ID      int64
	RunID   string
	EntryID string
	Oracle  string
	Message string
	Seq     int64
}
