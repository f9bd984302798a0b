package autofill

import (
	"errors"

	"github.com/Angabebr/elc-autofill/entries"
)

type Outcome struct {
	Entry         entries.Entry
	Clicked       bool
	ClickErr      error
	Selected      bool
	SelectedValue string
	SelectErr     error
}

func (o Outcome) OK() bool {
	return o.ClickErr == nil && o.SelectErr == nil
}

type Report struct {
	Outcomes []Outcome
}

func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Warnings counts failed steps. An entry can contribute two.
func (r *Report) Warnings() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.ClickErr != nil {
			n++
		}
		if o.SelectErr != nil {
			n++
		}
	}
	return n
}

// Err joins every step error in entry order, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.ClickErr != nil {
			errs = append(errs, o.ClickErr)
		}
		if o.SelectErr != nil {
			errs = append(errs, o.SelectErr)
		}
	}
	return errors.Join(errs...)
}
