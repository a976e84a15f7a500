package records

import (
	"fmt"

	"github.com/arloliu/mebo/endian"
)

// NumericType is the storage type of one field. The numbering matches the
// foxglove PackedElementField.NumericType enum so layouts map onto point
// cloud messages without translation tables.
type NumericType uint8

const (
	Unknown NumericType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// Size returns the byte width of the type, or 0 for Unknown.
func (t NumericType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (t NumericType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// FieldSpec declares one field of a record.
type FieldSpec struct {
	Name   string
	Offset uint32
	Type   NumericType
}

// End returns the offset one past the last byte of the field.
func (f FieldSpec) End() uint32 {
	return f.Offset + uint32(f.Type.Size())
}

// RecordLayout is a validated, immutable record description.
type RecordLayout struct {
	fields []FieldSpec
	index  map[string]int
	stride int
	order  endian.EndianEngine
}

// NewRecordLayout validates fields and derives the stride. The first field
// must start at offset 0 and every following field must start exactly
// where the previous one ends.
func NewRecordLayout(fields ...FieldSpec) (*RecordLayout, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("record layout has no fields")
	}

	l := &RecordLayout{
		fields: make([]FieldSpec, len(fields)),
		index:  make(map[string]int, len(fields)),
		order:  endian.GetLittleEndianEngine(),
	}
	copy(l.fields, fields)

	var next uint32
	for i, f := range l.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has an empty name", i)
		}
		if _, dup := l.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field name %q", f.Name)
		}
		if f.Type.Size() == 0 {
			return nil, fmt.Errorf("field %q has unsupported type %s", f.Name, f.Type)
		}
		switch {
		case f.Offset < next:
			return nil, fmt.Errorf("field %q at offset %d overlaps previous field ending at %d", f.Name, f.Offset, next)
		case f.Offset > next:
			return nil, fmt.Errorf("field %q at offset %d leaves %d padding bytes after offset %d", f.Name, f.Offset, f.Offset-next, next)
		}
		l.index[f.Name] = i
		next = f.End()
	}
	l.stride = int(next)

	return l, nil
}

// MustRecordLayout is NewRecordLayout for package-level declarations.
// It panics on an invalid layout.
func MustRecordLayout(fields ...FieldSpec) *RecordLayout {
	l, err := NewRecordLayout(fields...)
	if err != nil {
		panic("records: " + err.Error())
	}
	return l
}

// Stride returns the byte width of one record.
func (l *RecordLayout) Stride() int {
	return l.stride
}

// Fields returns a copy of the field list in declaration order.
func (l *RecordLayout) Fields() []FieldSpec {
	out := make([]FieldSpec, len(l.fields))
	copy(out, l.fields)
	return out
}

// NumFields returns the number of fields per record.
func (l *RecordLayout) NumFields() int {
	return len(l.fields)
}

// Field looks up a field by name.
func (l *RecordLayout) Field(name string) (FieldSpec, bool) {
	i, ok := l.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return l.fields[i], true
}

// ByteOrder returns the byte order used for every multi-byte field.
func (l *RecordLayout) ByteOrder() endian.EndianEngine {
	return l.order
}

// Equal reports whether both layouts declare the same fields in the same
// order.
func (l *RecordLayout) Equal(other *RecordLayout) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil || len(l.fields) != len(other.fields) {
		return false
	}
	for i := range l.fields {
		if l.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// AppendRecord packs one record from values given in field order and
// appends it to dst.
func (l *RecordLayout) AppendRecord(dst []byte, values ...Value) ([]byte, error) {
	if len(values) != len(l.fields) {
		return dst, fmt.Errorf("record needs %d values, got %d", len(l.fields), len(values))
	}
	for i, f := range l.fields {
		if values[i].typ != f.Type {
			return dst, fmt.Errorf("field %q is %s, got %s value", f.Name, f.Type, values[i].typ)
		}
	}
	for _, v := range values {
		dst = appendBits(l.order, dst, v.typ, v.bits)
	}
	return dst, nil
}

// Pack packs rows of values into a flat buffer of len(rows)*Stride bytes.
func Pack(l *RecordLayout, rows [][]Value) ([]byte, error) {
	out := make([]byte, 0, len(rows)*l.stride)
	for i, row := range rows {
		var err error
		out, err = l.AppendRecord(out, row...)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}

func (l *RecordLayout) String() string {
	s := "{"
	for i, f := range l.fields {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %s@%d", f.Name, f.Type, f.Offset)
	}
	return s + fmt.Sprintf("} stride=%d", l.stride)
}
