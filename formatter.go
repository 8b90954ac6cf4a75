package seria

import "reflect"

// Formatter is a reader/writer pair for one declared type. Write appends the
// encoded value to the buffer; Read decodes into an addressable value of the
// same type. Formatters are resolved once per declared type and reused for
// every occurrence on the hot path.
//
// The per-invocation state carries the reference table, the type-id table and
// the written/read schemata; formatters thread it through untouched.
type Formatter interface {
	Write(st *state, b *Buffer, v reflect.Value) error
	Read(st *state, r *Reader, v reflect.Value) error
}

// forwardFormatter is the placeholder published during two-phase formatter
// construction. A type whose members transitively require the type itself
// resolves to the forwarder; once construction completes the forwarder points
// at the finished formatter.
type forwardFormatter struct {
	target Formatter
}

func (f *forwardFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	return f.target.Write(st, b, v)
}

func (f *forwardFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	return f.target.Read(st, r, v)
}
