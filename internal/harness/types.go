package harness

// CaseResult is what one scenario case derived.
type CaseResult struct {
	Name     string `json:"name"`
	Start    string `json:"start"`
	Entropy  string `json:"entropy"` // hex
	Ceiling  int    `json:"ceiling"`
	Output   string `json:"output"`
	Status   string `json:"status"` // "ok" or a generation error code
	Consumed int    `json:"consumed"`
	EntryID  string `json:"entry_id"`
	Seq      int64  `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Cases holds one result per scenario case, in scenario order.
	Cases []CaseResult `json:"cases"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cases:  []CaseResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Case returns the result of the named case.
func (r *Result) Case(name string) (CaseResult, bool) {
	for _, c := range r.Cases {
		if c.Name == name {
			return c, true
		}
	}
	return CaseResult{}, false
}
