package ports

import "github.com/bft-labs/docship/pkg/log"

// Logger is the structured logger used by the application layer.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors, re-exported so internal packages need only ports.
var (
	String   = log.String
	Strings  = log.Strings
	Int      = log.Int
	Int32    = log.Int32
	Int64    = log.Int64
	Uint64   = log.Uint64
	Float64  = log.Float64
	Bool     = log.Bool
	Duration = log.Duration
	Bytes    = log.Bytes
	Err      = log.Err
	Any      = log.Any
)
