// Package patch applies JSON-Patch style edit operations to the update shape of a customer.
//
// Operations are applied in order on a scratch copy of the target. The copy is only handed back
// when every operation succeeded; the first failing operation aborts the whole patch and the
// caller keeps its original value.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gitlab.com/dirk.krummacker/customers-service/internal/apperr"
	"gitlab.com/dirk.krummacker/customers-service/internal/model"
)

// Op is the kind of an edit operation.
type Op string

const (
	// OpAdd sets the addressed field. Since every field of a customer always exists, it behaves
	// exactly like OpReplace.
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpTest    Op = "test"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
)

// Operation is a single edit instruction, e.g. {"op": "replace", "path": "/name", "value": "Bob"}.
type Operation struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Outcome reports the result of one operation. Err is nil for operations that succeeded.
type Outcome struct {
	Index int
	Op    Op
	Path  string
	Err   error
}

// OperationError identifies the operation that aborted a patch. It wraps an *apperr.Error.
type OperationError struct {
	Index int
	Op    Op
	Path  string
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s %s): %v", e.Index, e.Op, e.Path, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Apply runs ops against target from left to right. Later operations observe the effects of
// earlier ones. On success it returns the patched copy; on failure it returns target unchanged,
// the outcomes up to and including the failing operation, and an *OperationError.
func Apply(target model.CustomerUpdate, ops []Operation) (model.CustomerUpdate, []Outcome, error) {
	scratch := target
	outcomes := make([]Outcome, 0, len(ops))
	for i, op := range ops {
		err := applyOne(&scratch, op)
		outcomes = append(outcomes, Outcome{Index: i, Op: op.Op, Path: op.Path, Err: err})
		if err != nil {
			return target, outcomes, &OperationError{Index: i, Op: op.Op, Path: op.Path, Err: err}
		}
	}
	return scratch, outcomes, nil
}

func applyOne(s *model.CustomerUpdate, op Operation) error {
	switch op.Op {
	case OpAdd, OpReplace:
		f, err := writable(op.Path)
		if err != nil {
			return err
		}
		v, err := f.decode(op.Value)
		if err != nil {
			return err
		}
		f.set(s, v)
	case OpRemove:
		f, err := writable(op.Path)
		if err != nil {
			return err
		}
		f.reset(s)
	case OpTest:
		f, err := lookup(op.Path)
		if err != nil {
			return err
		}
		v, err := f.decode(op.Value)
		if err != nil {
			return err
		}
		if current := f.get(s); current != v {
			return apperr.New(apperr.PatchPreconditionFailed,
				"test failed: %s is %v, expected %v", f.path(), current, v)
		}
	case OpMove, OpCopy:
		if op.From == "" {
			return apperr.New(apperr.InvalidPatchPath, "%s requires a from path", op.Op)
		}
		var from *field
		var err error
		if op.Op == OpMove {
			from, err = writable(op.From)
		} else {
			from, err = lookup(op.From)
		}
		if err != nil {
			return err
		}
		to, err := writable(op.Path)
		if err != nil {
			return err
		}
		if from.kind != to.kind {
			return apperr.New(apperr.InvalidPatchValue,
				"cannot %s %s into %s: incompatible types", op.Op, from.path(), to.path())
		}
		if from == to {
			return nil
		}
		to.set(s, from.get(s))
		if op.Op == OpMove {
			from.reset(s)
		}
	case "":
		return apperr.New(apperr.InvalidPatchRequest, "operation kind is missing")
	default:
		return apperr.New(apperr.InvalidPatchRequest, "unsupported operation %q", op.Op)
	}
	return nil
}

type fieldKind int

const (
	textField fieldKind = iota
	integerField
)

// field describes one addressable member of model.CustomerUpdate.
type field struct {
	name     string
	kind     fieldKind
	readOnly bool
	optional bool
	text     func(*model.CustomerUpdate) *string
	integer  func(*model.CustomerUpdate) *int64
}

var fields = []*field{
	{name: "id", kind: integerField, readOnly: true,
		integer: func(s *model.CustomerUpdate) *int64 { return &s.Id }},
	{name: "email", kind: textField, optional: true,
		text: func(s *model.CustomerUpdate) *string { return &s.Email }},
	{name: "name", kind: textField,
		text: func(s *model.CustomerUpdate) *string { return &s.Name }},
	{name: "phone", kind: integerField,
		integer: func(s *model.CustomerUpdate) *int64 { return &s.Phone }},
	{name: "address", kind: textField, optional: true,
		text: func(s *model.CustomerUpdate) *string { return &s.Address }},
	{name: "notes", kind: textField, optional: true,
		text: func(s *model.CustomerUpdate) *string { return &s.Notes }},
}

// lookup resolves a JSON pointer such as "/name". Field names match case-insensitively.
func lookup(path string) (*field, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, apperr.New(apperr.InvalidPatchPath, "invalid path %q", path)
	}
	segment := path[1:]
	if strings.Contains(segment, "/") {
		return nil, apperr.New(apperr.InvalidPatchPath, "unknown path %q", path)
	}
	segment = strings.NewReplacer("~1", "/", "~0", "~").Replace(segment)
	for _, f := range fields {
		if strings.EqualFold(f.name, segment) {
			return f, nil
		}
	}
	return nil, apperr.New(apperr.InvalidPatchPath, "unknown path %q", path)
}

// writable resolves a path that an operation is going to modify.
func writable(path string) (*field, error) {
	f, err := lookup(path)
	if err != nil {
		return nil, err
	}
	if f.readOnly {
		return nil, apperr.New(apperr.InvalidPatchPath, "path %q is read-only", path)
	}
	return f, nil
}

func (f *field) path() string {
	return "/" + f.name
}

func (f *field) get(s *model.CustomerUpdate) any {
	if f.kind == textField {
		return *f.text(s)
	}
	return *f.integer(s)
}

func (f *field) set(s *model.CustomerUpdate, v any) {
	if f.kind == textField {
		*f.text(s) = v.(string)
		return
	}
	*f.integer(s) = v.(int64)
}

// reset sets the field to its zero value. Fields of the update shape have no "absent" state.
func (f *field) reset(s *model.CustomerUpdate) {
	if f.kind == textField {
		*f.text(s) = ""
		return
	}
	*f.integer(s) = 0
}

// decode converts an operation value to the field's Go type.
func (f *field) decode(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, apperr.New(apperr.InvalidPatchValue, "missing value for %s", f.path())
	}
	if bytes.Equal(trimmed, []byte("null")) {
		if f.kind == textField && f.optional {
			return "", nil
		}
		return nil, apperr.New(apperr.InvalidPatchValue, "%s must not be null", f.path())
	}
	switch f.kind {
	case textField:
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, apperr.New(apperr.InvalidPatchValue, "%s must be a string", f.path())
		}
		return v, nil
	default:
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, apperr.New(apperr.InvalidPatchValue, "%s must be an integer", f.path())
		}
		n, ok := v.(json.Number)
		if !ok {
			return nil, apperr.New(apperr.InvalidPatchValue, "%s must be an integer", f.path())
		}
		i, err := n.Int64()
		if err != nil {
			return nil, apperr.New(apperr.InvalidPatchValue, "%s must be an integer", f.path())
		}
		return i, nil
	}
}
