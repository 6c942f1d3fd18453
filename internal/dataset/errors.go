package dataset

import (
	"errors"
	"fmt"
)

type LoadErrorKind int

const (
	KindMalformed LoadErrorKind = iota + 1
	KindEmpty
	KindMissingColumn
	KindBadDate
	KindBadNumber
	KindNegativeAmount
)

var (
	ErrMalformed      = errors.New("malformed input")
	ErrEmpty          = errors.New("no data")
	ErrMissingColumn  = errors.New("missing required column")
	ErrBadDate        = errors.New("unrecognized date")
	ErrBadNumber      = errors.New("not a number")
	ErrNegativeAmount = errors.New("negative amount")
)

var kindSentinels = map[LoadErrorKind]error{
	KindMalformed:      ErrMalformed,
	KindEmpty:          ErrEmpty,
	KindMissingColumn:  ErrMissingColumn,
	KindBadDate:        ErrBadDate,
	KindBadNumber:      ErrBadNumber,
	KindNegativeAmount: ErrNegativeAmount,
}

func (k LoadErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindEmpty:
		return "empty"
	case KindMissingColumn:
		return "missing_column"
	case KindBadDate:
		return "bad_date"
	case KindBadNumber:
		return "bad_number"
	case KindNegativeAmount:
		return "negative_amount"
	default:
		return "unknown"
	}
}

// LoadError is fatal to one load attempt. Row is the 1-based source line
// (the header is line 1); it is 0 when the error is not tied to a row.
type LoadError struct {
	Kind   LoadErrorKind
	Row    int
	Column string
	Raw    string
	Err    error
}

func (e *LoadError) Error() string {
	msg := kindSentinels[e.Kind].Error()
	switch {
	case e.Row > 0 && e.Column != "":
		msg = fmt.Sprintf("row %d, column %q: %s %q", e.Row, e.Column, msg, e.Raw)
	case e.Row > 0:
		msg = fmt.Sprintf("row %d: %s", e.Row, msg)
	case e.Column != "":
		msg = fmt.Sprintf("%s %q", msg, e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "load: " + msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, dataset.ErrBadDate).
func (e *LoadError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
