// Package pipeline defines the error taxonomy shared by the workflow's
// worker loops.
package pipeline

import "errors"

// Sentinel error kinds. Workers compare against these with errors.Is;
// wrapping constructors attach the per-call detail.
var (
	ErrStoreBusy        = errors.New("store busy")
	ErrStoreError       = errors.New("store error")
	ErrProbeFailed      = errors.New("probe failed")
	ErrModelFailed      = errors.New("model call failed")
	ErrCommandInvalid   = errors.New("ai_command missing required placeholder")
	ErrTranscodeFailed  = errors.New("transcode failed")
	ErrInputMissing     = errors.New("input file missing")
	ErrMoveFailed       = errors.New("move failed")
)

// wrapped pairs an error kind with call-specific detail while remaining
// matchable with errors.Is against the sentinel.
type wrapped struct {
	kind error
	msg  string
	err  error
}

func (w *wrapped) Error() string {
	if w.err != nil {
		return w.msg + ": " + w.err.Error()
	}
	return w.msg
}

// Unwrap exposes both the sentinel kind and the underlying cause, so
// errors.Is(err, ErrStoreBusy) and errors.Is/As against the real cause
// (e.g. a driver-level sql.ErrNoRows) both traverse correctly.
func (w *wrapped) Unwrap() []error {
	if w.err == nil {
		return []error{w.kind}
	}
	return []error{w.kind, w.err}
}

func wrap(kind error, msg string, err error) error {
	return &wrapped{kind: kind, msg: msg, err: err}
}

func StoreBusy(msg string, err error) error       { return wrap(ErrStoreBusy, msg, err) }
func StoreError(msg string, err error) error      { return wrap(ErrStoreError, msg, err) }
func ProbeFailed(msg string, err error) error     { return wrap(ErrProbeFailed, msg, err) }
func ModelFailed(msg string, err error) error     { return wrap(ErrModelFailed, msg, err) }
func CommandInvalid(msg string) error             { return wrap(ErrCommandInvalid, msg, nil) }
func TranscodeFailed(msg string, err error) error { return wrap(ErrTranscodeFailed, msg, err) }
func InputMissing(msg string) error               { return wrap(ErrInputMissing, msg, nil) }
func MoveFailed(msg string, err error) error       { return wrap(ErrMoveFailed, msg, err) }

// ReductionBelowThreshold is not an error (spec: transitions to re-confirmed,
// never returned as an error value) — represented as a plain bool result by
// callers, not a type here. See internal/transcode.Result.Aborted.
