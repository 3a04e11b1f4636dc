// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// Output is where a command tree writes its results.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Printf writes formatted text to Stdout.
func (o Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.Stdout, format, args...)
}

// WriteJSON writes value as indented JSON to Stdout. A nil slice is
// written as [] rather than null.
func (o Output) WriteJSON(value any) error {
	encoder := json.NewEncoder(o.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(normalizeNilSlice(value))
}

// JSONOutput adds a --json flag to a parameter struct by embedding.
type JSONOutput struct {
	OutputJSON bool `flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result to out when --json is set and reports whether
// it did; the caller falls through to text formatting otherwise.
func (j *JSONOutput) EmitJSON(out Output, result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, out.WriteJSON(result)
}

func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}

// ExitError requests a non-zero exit without printing an error line;
// the command has already reported the outcome on its own.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
