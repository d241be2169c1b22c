package record

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Version is the only supported record blob version.
const Version byte = 0

// MalformedRecord is returned by Decode when the input bytes violate the
// codec's constraints: bad version, truncation, out-of-range lengths,
// non-lowercase keys, unsorted or duplicate keys.
type MalformedRecord struct {
	Reason string
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("malformed record: %s", e.Reason)
}

func malformed(format string, args ...interface{}) error {
	return &MalformedRecord{Reason: fmt.Sprintf(format, args...)}
}

// Encode produces the canonical byte form of d: VERSION || entry_type_len ||
// entry_type || (key_len || value_len || key || value)*, fields sorted
// ascending by key. Encode checks every field with ValidateField and
// rejects an over-long entry type or a duplicate key with an error, so it
// never produces a blob that Decode would reject.
func Encode(d Data) ([]byte, error) {
	if len(d.EntryType) > 0xFF {
		return nil, fmt.Errorf("entry type too long: %d bytes", len(d.EntryType))
	}
	fields := d.Sorted()
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if err := ValidateField(f); err != nil {
			return nil, err
		}
		if _, dup := seen[f.Key]; dup {
			return nil, fmt.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
	}

	buf := make([]byte, 0, 2+len(d.EntryType)+len(fields)*3)
	buf = append(buf, Version)
	buf = append(buf, byte(len(d.EntryType)))
	buf = append(buf, d.EntryType...)
	for _, f := range fields {
		buf = append(buf, byte(len(f.Key)))
		var vlen [2]byte
		binary.LittleEndian.PutUint16(vlen[:], uint16(len(f.Value)))
		buf = append(buf, vlen[:]...)
		buf = append(buf, f.Key...)
		buf = append(buf, f.Value...)
	}
	return buf, nil
}

// ValidateField checks that a field's key is non-empty, ASCII-lowercase, at
// most 255 bytes, and that its value is at most 65535 bytes of valid UTF-8.
func ValidateField(f Field) error {
	if len(f.Key) == 0 {
		return fmt.Errorf("empty field key")
	}
	if len(f.Key) > 0xFF {
		return fmt.Errorf("field key %q too long", f.Key)
	}
	for i := 0; i < len(f.Key); i++ {
		c := f.Key[i]
		if c < 'a' || c > 'z' {
			return fmt.Errorf("field key %q is not ASCII lowercase", f.Key)
		}
	}
	if len(f.Value) > 0xFFFF {
		return fmt.Errorf("field %q value too long", f.Key)
	}
	if !utf8Valid(f.Value) {
		return fmt.Errorf("field %q value is not valid UTF-8", f.Key)
	}
	return nil
}

// Decode parses a canonical record blob, failing with *MalformedRecord on
// any violation of the §4.1 constraints (bad version, truncation,
// out-of-range lengths, non-lowercase key, unsorted fields, duplicate key,
// invalid UTF-8).
func Decode(b []byte) (Data, error) {
	if len(b) < 1 {
		return Data{}, malformed("empty input")
	}
	if b[0] != Version {
		return Data{}, malformed("unsupported version %d", b[0])
	}
	pos := 1
	if pos >= len(b) {
		return Data{}, malformed("truncated: missing entry_type_len")
	}
	etLen := int(b[pos])
	pos++
	if pos+etLen > len(b) {
		return Data{}, malformed("truncated: entry_type")
	}
	entryType := string(b[pos : pos+etLen])
	if !utf8Valid(entryType) {
		return Data{}, malformed("entry_type is not valid UTF-8")
	}
	pos += etLen

	var fields []Field
	lastKey := ""
	first := true
	for pos < len(b) {
		if pos+3 > len(b) {
			return Data{}, malformed("truncated: field header")
		}
		keyLen := int(b[pos])
		valLen := int(binary.LittleEndian.Uint16(b[pos+1 : pos+3]))
		pos += 3
		if pos+keyLen > len(b) {
			return Data{}, malformed("truncated: field key")
		}
		key := string(b[pos : pos+keyLen])
		pos += keyLen
		if pos+valLen > len(b) {
			return Data{}, malformed("truncated: field value")
		}
		value := string(b[pos : pos+valLen])
		pos += valLen

		if keyLen == 0 {
			return Data{}, malformed("empty field key")
		}
		for i := 0; i < len(key); i++ {
			c := key[i]
			if c < 'a' || c > 'z' {
				return Data{}, malformed("field key %q is not ASCII lowercase", key)
			}
		}
		if !utf8Valid(value) {
			return Data{}, malformed("field %q value is not valid UTF-8", key)
		}
		if !first {
			if key == lastKey {
				return Data{}, malformed("duplicate field key %q", key)
			}
			if key < lastKey {
				return Data{}, malformed("fields not sorted ascending at key %q", key)
			}
		}
		first = false
		lastKey = key
		fields = append(fields, Field{Key: key, Value: value})
	}

	return Data{EntryType: entryType, Fields: fields}, nil
}

func utf8Valid(s string) bool {
	return utf8.ValidString(s)
}
