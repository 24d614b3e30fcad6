package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("storage: connection failed")
	// ErrSchema is matched by every *SchemaError.
	ErrSchema = errors.New("storage: schema provisioning failed")
	// ErrUnknownTable is matched by every *UnknownTableError.
	ErrUnknownTable = errors.New("storage: unknown table")
	// ErrUnknownColumn is matched by every *UnknownColumnError.
	ErrUnknownColumn = errors.New("storage: unknown column")
	// ErrInsert is matched by every *InsertError.
	ErrInsert = errors.New("storage: insert failed")
)

// ConnectionError wraps a failed dial.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("storage: connect: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// SchemaError lists the tables that could not be provisioned. Err aggregates the per-table causes.
type SchemaError struct {
	Failed []string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("storage: provision tables [%s]: %v", strings.Join(e.Failed, ", "), e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// UnknownTableError rejects inserts into tables missing from the schema descriptor.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("storage: table %q is not declared", e.Table)
}

func (e *UnknownTableError) Is(target error) bool { return target == ErrUnknownTable }

// UnknownColumnError rejects fields that are not declared for the target table.
type UnknownColumnError struct {
	Table  string
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("storage: column %q is not declared for table %q", e.Column, e.Table)
}

func (e *UnknownColumnError) Is(target error) bool { return target == ErrUnknownColumn }

// InsertError wraps a failed insert statement.
type InsertError struct {
	Table string
	Cause error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("storage: insert into %q: %v", e.Table, e.Cause)
}

func (e *InsertError) Unwrap() error { return e.Cause }

func (e *InsertError) Is(target error) bool { return target == ErrInsert }
