package harness

import (
	"github.com/WuShichao/lalsuite/internal/builder"
	"github.com/WuShichao/lalsuite/internal/graph"
)

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	Graph   *graph.Graph     `json:"-"`
	Summary *builder.Summary `json:"summary"`
}

// NewResult returns a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
