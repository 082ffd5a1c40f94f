// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

// FieldReadWriter reads and writes single register fields.
type FieldReadWriter interface {
	ReadField(f Field) (uint32, error)
	WriteField(f Field, v uint32) error
}

// ReadGroup reads the logical value held by group id.
//
// Fields are read least significant first. The first failing read aborts
// the operation and no partial value is returned.
func ReadGroup(rw FieldReadWriter, tbl *Table, id GroupID) (uint32, error) {
	var (
		v     uint32
		shift uint
	)
	for _, fid := range tbl.groups[id] {
		f := tbl.fields[fid]
		fv, err := rw.ReadField(f)
		if err != nil {
			return 0, err
		}
		v |= fv << shift
		shift += uint(f.Width)
	}
	return v, nil
}

// WriteGroup writes v across the fields of group id.
//
// Each field receives the low bits of v covering its width, then v is
// shifted right by that width. Bits beyond the total width of the group
// are dropped. A failing write aborts the operation and fields already
// written are left as is.
func WriteGroup(rw FieldReadWriter, tbl *Table, id GroupID, v uint32) error {
	for _, fid := range tbl.groups[id] {
		f := tbl.fields[fid]
		err := rw.WriteField(f, v&(uint32(1)<<f.Width-1))
		if err != nil {
			return err
		}
		v >>= f.Width
	}
	return nil
}
