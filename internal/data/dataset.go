package data

import (
	"fmt"

	"github.com/born-ml/pots/internal/errs"
)

// Dataset is an Observation plus the optional supervision each task needs.
// Every non-nil field must agree with Obs on the sample count.
type Dataset struct {
	Obs *Observation

	// Labels holds class ids for classification, ground-truth cluster ids for
	// clustering evaluation, or 0/1 anomaly flags.
	Labels []int

	// Truth holds the complete series for imputation evaluation, shape equal to
	// Obs. Only entries observed in Truth and missing in Obs are scored.
	Truth *Observation

	// Target holds the future steps to forecast, [N, P, F].
	Target *Observation
}

// N returns the sample count, 0 for a nil dataset.
func (d *Dataset) N() int {
	if d == nil || d.Obs == nil {
		return 0
	}
	return d.Obs.N()
}

// Validate checks that all auxiliary arrays agree on N and shapes.
func (d *Dataset) Validate() error {
	if d == nil || d.Obs == nil {
		return &errs.DataShapeError{What: "dataset has no observations"}
	}
	n := d.Obs.N()
	if len(d.Obs.Lengths) != n {
		return errs.DataShape("lengths", []int{n}, []int{len(d.Obs.Lengths)})
	}
	for i, l := range d.Obs.Lengths {
		if l < 0 || l > d.Obs.Steps() {
			return &errs.DataShapeError{What: fmt.Sprintf("sample %d length %d outside [0, %d]", i, l, d.Obs.Steps())}
		}
	}
	if d.Labels != nil && len(d.Labels) != n {
		return errs.DataShape("labels", []int{n}, []int{len(d.Labels)})
	}
	if d.Truth != nil && !d.Truth.X.Shape().Equal(d.Obs.X.Shape()) {
		return errs.DataShape("truth", d.Obs.X.Shape(), d.Truth.X.Shape())
	}
	if d.Target != nil {
		if d.Target.N() != n {
			return errs.DataShape("target samples", []int{n}, []int{d.Target.N()})
		}
		if d.Target.Features() != d.Obs.Features() {
			return errs.DataShape("target features", []int{d.Obs.Features()}, []int{d.Target.Features()})
		}
	}
	return nil
}

// NumClasses returns max(Labels)+1, or 0 without labels.
func (d *Dataset) NumClasses() int {
	k := 0
	for _, y := range d.Labels {
		k = max(k, y+1)
	}
	return k
}
