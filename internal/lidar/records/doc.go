// Package records describes fixed-width binary point records and decodes
// files of them.
//
// A RecordLayout is an ordered list of FieldSpecs (name, byte offset,
// numeric type). Fields are packed back to back with no padding, so the
// stride of a record is the end offset of its last field. Layouts are
// declared once as package-level values and validated at construction.
//
// Decode reads a whole file into memory and wraps it in a Buffer without
// copying or per-field parsing. The only check it performs is structural:
// the file length must be an exact multiple of the stride. Values inside
// the records are never range-checked.
//
// All multi-byte fields are little-endian. The order is fixed and not
// detected from the data or the host.
package records
