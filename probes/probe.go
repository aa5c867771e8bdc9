package probes

import (
	"context"
	"fmt"

	"asinpusher/types"
)

// Backend names used in logs, reports and outcome maps.
const (
	BackendDatabase      = "database"
	BackendObjectStorage = "object_storage"
)

// Status is the tag of a probe Result.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one check against one backend for one record.
// Metadata is only set for Found, Err only for Error.
type Result struct {
	Status   Status
	Metadata map[string]string
	Err      error
}

// Found builds a Found result.
func Found(metadata map[string]string) Result {
	return Result{Status: StatusFound, Metadata: metadata}
}

// NotFound builds a NotFound result. Ordinary absence is never an error.
func NotFound() Result {
	return Result{Status: StatusNotFound}
}

// Errored builds a retryable Error result.
func Errored(err error) Result {
	return Result{Status: StatusError, Err: err}
}

// Reason returns a human readable description of an Error result.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Probe checks whether downstream processing of a record is visible in one backend.
// Implementations hold no per-record state and are safe for concurrent use.
type Probe interface {
	Name() string
	Check(ctx context.Context, rec types.Record) Result
}

// ProbeError is a transient backend failure. It is retried by the verification engine.
type ProbeError struct {
	Backend string
	Record  types.Record
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe %s: %v", e.Backend, e.Record, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }
