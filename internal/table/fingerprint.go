package table

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns a 64-bit xxh3 digest of the table name, schema and rows
// in order. Two runs over unchanged input produce the same fingerprint, which
// is what the run summary logs to make idempotence checkable.
func (t *Table) Fingerprint() uint64 {
	h := xxh3.New()
	var lenBuf [8]byte

	writeField := func(s string, null bool) {
		if null {
			_, _ = h.Write([]byte{0})
			return
		}
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
		_, _ = h.Write([]byte{1})
		_, _ = h.Write(lenBuf[:])
		_, _ = h.WriteString(s)
	}

	writeField(t.name, false)
	for _, f := range t.schema {
		writeField(f.Name, false)
		writeField(string(f.Type), false)
	}
	for r := 0; r < t.rows; r++ {
		for c := range t.cols {
			v := t.cols[c][r]
			writeField(Format(v), v == nil)
		}
	}
	return h.Sum64()
}

// FingerprintHex is Fingerprint formatted as 16 hex digits.
func (t *Table) FingerprintHex() string {
	return fmt.Sprintf("%016x", t.Fingerprint())
}
