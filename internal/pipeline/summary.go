package pipeline

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// VariableResult is the outcome of consolidating one variable.
type VariableResult struct {
	Identity  domain.VariableIdentity
	Output    string
	Loaded    int
	Snapshots int
	Dropped   int
	Err       error
}

// OK reports whether the variable's series was written.
func (r VariableResult) OK() bool { return r.Err == nil }

// Status is "ok" or the error kind.
func (r VariableResult) Status() string {
	if r.OK() {
		return "ok"
	}
	return domain.ErrorKind(r.Err)
}

// Summary collects the per-variable results of a run, in plan order.
type Summary struct {
	RunID    string
	Results  []VariableResult
	Duration time.Duration
}

// Succeeded counts variables whose series was written.
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed returns the results of failed variables.
func (s *Summary) Failed() []VariableResult {
	var out []VariableResult
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Err joins the failures of the run, or returns nil if every variable succeeded.
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Identity, r.Err))
	}
	return errors.Join(errs...)
}

// Render writes a human-readable table of the run.
func (s *Summary) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s: %d of %d variables consolidated in %s\n\n",
		s.RunID, s.Succeeded(), len(s.Results), s.Duration.Round(time.Millisecond)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tCODE\tSTATUS\tSNAPSHOTS\tDROPPED\tDETAIL")
	for _, r := range s.Results {
		detail := r.Output
		if !r.OK() {
			detail = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.Identity.Name, r.Identity.Code, r.Status(), r.Snapshots, r.Dropped, detail)
	}
	return tw.Flush()
}
