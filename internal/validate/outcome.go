// Package validate evaluates tile records against the QC standard.
//
// Every predicate is a pure function of the record, the official tile
// scheme and the supplied index cache. A predicate whose inputs are missing
// reports Unknown, which never counts as passing.
package validate

// Outcome is the result of one check on one record
type Outcome int

const (
	Unknown Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// OK is true only for Pass
func (o Outcome) OK() bool { return o == Pass }

// Bool converts to a nullable boolean for report columns
func (o Outcome) Bool() *bool {
	if o == Unknown {
		return nil
	}
	b := o == Pass
	return &b
}

func of(ok bool) Outcome {
	if ok {
		return Pass
	}
	return Fail
}
