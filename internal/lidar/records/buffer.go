package records

import (
	"fmt"
	"iter"
	"math"

	"github.com/banshee-data/atritec/internal/fsutil"
)

// Buffer is a decoded run of records: raw bytes whose length is always a
// multiple of the layout stride. Bytes returns the backing array itself;
// callers must treat it as read-only.
type Buffer struct {
	layout *RecordLayout
	data   []byte
}

// NewBuffer wraps data without copying. It fails with *LayoutMismatchError
// if data is not a whole number of records.
func NewBuffer(layout *RecordLayout, data []byte) (*Buffer, error) {
	if layout == nil {
		return nil, fmt.Errorf("nil record layout")
	}
	if len(data)%layout.stride != 0 {
		return nil, &LayoutMismatchError{Size: len(data), Stride: layout.stride}
	}
	return &Buffer{layout: layout, data: data}, nil
}

// Decode reads the whole file at path and reinterprets it as records of
// layout. Read failures come back as *IOError, a length that is not a
// multiple of the stride as *LayoutMismatchError.
func Decode(layout *RecordLayout, fsys fsutil.FileSystem, path string) (*Buffer, error) {
	if layout == nil {
		return nil, fmt.Errorf("nil record layout")
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if len(data)%layout.stride != 0 {
		return nil, &LayoutMismatchError{Path: path, Size: len(data), Stride: layout.stride}
	}
	return &Buffer{layout: layout, data: data}, nil
}

// DecodeFile is Decode on the OS filesystem.
func DecodeFile(layout *RecordLayout, path string) (*Buffer, error) {
	return Decode(layout, fsutil.OSFileSystem{}, path)
}

// Layout returns the layout the buffer was decoded with.
func (b *Buffer) Layout() *RecordLayout { return b.layout }

// Len returns the number of records.
func (b *Buffer) Len() int { return len(b.data) / b.layout.stride }

// Bytes returns the packed records.
func (b *Buffer) Bytes() []byte { return b.data }

// Record returns record i. It panics if i is out of range.
func (b *Buffer) Record(i int) Record {
	start := i * b.layout.stride
	return Record{layout: b.layout, data: b.data[start : start+b.layout.stride : start+b.layout.stride]}
}

// All iterates the records in file order.
func (b *Buffer) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i := 0; i < b.Len(); i++ {
			if !yield(i, b.Record(i)) {
				return
			}
		}
	}
}

// Record is a view of one packed record.
type Record struct {
	layout *RecordLayout
	data   []byte
}

// Bytes returns the stride-sized slice backing the record.
func (r Record) Bytes() []byte { return r.data }

// Value reads the named field.
func (r Record) Value(name string) (Value, error) {
	f, ok := r.layout.Field(name)
	if !ok {
		return Value{}, fmt.Errorf("unknown field %q", name)
	}
	return r.field(f), nil
}

// Values reads every field in declaration order.
func (r Record) Values() []Value {
	out := make([]Value, len(r.layout.fields))
	for i, f := range r.layout.fields {
		out[i] = r.field(f)
	}
	return out
}

// Uint32 reads a uint32 field.
func (r Record) Uint32(name string) (uint32, error) {
	v, err := r.typed(name, Uint32)
	return uint32(v.bits), err
}

// Uint16 reads a uint16 field.
func (r Record) Uint16(name string) (uint16, error) {
	v, err := r.typed(name, Uint16)
	return uint16(v.bits), err
}

// Float32 reads a float32 field.
func (r Record) Float32(name string) (float32, error) {
	v, err := r.typed(name, Float32)
	return math.Float32frombits(uint32(v.bits)), err
}

func (r Record) typed(name string, want NumericType) (Value, error) {
	v, err := r.Value(name)
	if err != nil {
		return Value{}, err
	}
	if v.typ != want {
		return Value{}, fmt.Errorf("field %q is %s, not %s", name, v.typ, want)
	}
	return v, nil
}

func (r Record) field(f FieldSpec) Value {
	b := r.data[f.Offset:f.End()]
	return Value{typ: f.Type, bits: readBits(r.layout.order, b, f.Type)}
}
