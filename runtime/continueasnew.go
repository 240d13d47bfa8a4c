package runtime

import "errors"

// ContinueAsNewSignal is the tail-call-return primitive described in
// spec §9's Design Notes: it ends the current workflow run and re-enters
// with NextInput. It is detected with errors.As, never by matching an
// error message or exception name — closing the open question the
// source's string-matching approach left unresolved.
type ContinueAsNewSignal struct {
	NextInput any
}

func (c *ContinueAsNewSignal) Error() string {
	return "continue-as-new"
}

// ContinueAsNew returns a ContinueAsNewSignal wrapping nextInput. Callers
// return this value from a workflow function exactly like any other
// error; the Runner (or a parent catch block per spec §5) must re-raise
// it rather than treating it as a failure.
func ContinueAsNew(nextInput any) error {
	return &ContinueAsNewSignal{NextInput: nextInput}
}

// AsContinueAsNew reports whether err is a ContinueAsNewSignal and
// returns it, following the same errors.As idiom used throughout this
// module instead of inspecting error text.
func AsContinueAsNew(err error) (*ContinueAsNewSignal, bool) {
	var sig *ContinueAsNewSignal
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}
