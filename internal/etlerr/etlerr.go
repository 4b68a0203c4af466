// Package etlerr defines the failure kinds shared by every pipeline stage and
// a StageError wrapper that records where a failure happened.
//
// Kinds are sentinel errors matched with errors.Is; the stage and the object
// involved (file, table, or report) are recovered with errors.As:
//
//	var se *etlerr.StageError
//	if errors.As(err, &se) {
//	    log.Printf("stage=%s object=%s", se.Stage, se.Object)
//	}
//	if errors.Is(err, etlerr.ErrTableNotFound) { ... }
package etlerr

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound reports a source file path that does not resolve.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSchemaMismatch reports source data that disagrees with the declared
	// or previously loaded schema of a table.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrTableNotFound reports a table missing from a store.
	ErrTableNotFound = errors.New("table not found")

	// ErrSchemaConflict reports a pre-existing warehouse table whose columns
	// are incompatible with the report being written.
	ErrSchemaConflict = errors.New("schema conflict")

	// ErrStoreUnavailable reports a connectivity failure against a store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Stage names used in StageError.
const (
	StageConfig  = "config"
	StageConnect = "connect"
	StageLoad    = "load"
	StageExtract = "extract"
	StageBuild   = "build"
	StageWrite   = "write"
)

// StageError ties an error to the pipeline stage and object it occurred on.
type StageError struct {
	Stage  string
	Object string
	Err    error
}

func (e *StageError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Object, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Wrap returns err wrapped in a StageError, or nil when err is nil. An error
// that already carries a StageError is returned unchanged so the innermost
// stage wins.
func Wrap(stage, object string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Object: object, Err: err}
}
