package diagnosis

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	MalformedPayload ErrorKind = iota + 1
	SchemaViolation
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedPayload:
		return "malformed_payload"
	case SchemaViolation:
		return "schema_violation"
	default:
		return "unknown"
	}
}

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrSchemaViolation  = errors.New("schema violation")
)

// NormalizationError carries enough of the model output for a user to see
// what went wrong. RawText is always the text as received.
type NormalizationError struct {
	Kind         ErrorKind
	Field        string // SchemaViolation only
	Value        string // raw JSON of the received value, empty when missing
	RawText      string
	StrippedText string
	Err          error
}

func (e *NormalizationError) Error() string {
	switch e.Kind {
	case MalformedPayload:
		if e.Err != nil {
			return fmt.Sprintf("malformed payload: %v", e.Err)
		}
		return "malformed payload: response is not valid JSON"
	case SchemaViolation:
		if e.Value == "" {
			return fmt.Sprintf("schema violation: field %s is missing", e.Field)
		}
		if e.Err != nil {
			return fmt.Sprintf("schema violation: field %s: %v (got %s)", e.Field, e.Err, e.Value)
		}
		return fmt.Sprintf("schema violation: field %s has invalid value %s", e.Field, e.Value)
	}
	return "normalization failed"
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func (e *NormalizationError) Is(target error) bool {
	switch target {
	case ErrMalformedPayload:
		return e.Kind == MalformedPayload
	case ErrSchemaViolation:
		return e.Kind == SchemaViolation
	}
	return false
}
