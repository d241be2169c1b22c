package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := Data{
		EntryType: "article",
		Fields: []Field{
			{Key: "title", Value: "A note on entropy"},
			{Key: "doi", Value: "10.4007/annals.2014.180.2.7"},
			{Key: "author", Value: "M. Hochman"},
		},
	}
	enc, err := Encode(d)
	require.NoError(t, err)

	dec, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, "article", dec.EntryType)
	assert.Equal(t, d.Sorted(), dec.Sorted())

	enc2, err := Encode(dec)
	require.NoError(t, err)
	assert.Equal(t, enc, enc2, "re-encoding a decoded record must reproduce the same canonical bytes")
}

func TestEncodeIsCanonical(t *testing.T) {
	a := Data{EntryType: "book", Fields: []Field{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}}
	b := Data{EntryType: "book", Fields: []Field{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}}
	ea, err := Encode(a)
	require.NoError(t, err)
	eb, err := Encode(b)
	require.NoError(t, err)
	assert.Equal(t, ea, eb, "field order must not affect encoded bytes")
}

func TestEncodeRejectsDuplicateKeys(t *testing.T) {
	d := Data{EntryType: "misc", Fields: []Field{{Key: "a", Value: "1"}, {Key: "a", Value: "2"}}}
	_, err := Encode(d)
	assert.Error(t, err)
}

func TestEncodeRejectsBadKeyCase(t *testing.T) {
	d := Data{EntryType: "misc", Fields: []Field{{Key: "Title", Value: "x"}}}
	_, err := Encode(d)
	assert.Error(t, err)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	_, err := Decode([]byte{1, 0})
	assert.Error(t, err)
	var mr *MalformedRecord
	assert.ErrorAs(t, err, &mr)
}

func TestDecodeRejectsEmptyInput(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsTruncation(t *testing.T) {
	full, err := Encode(Data{EntryType: "article", Fields: []Field{{Key: "doi", Value: "x"}}})
	require.NoError(t, err)
	// Cutting right after the entry type leaves a complete zero-field
	// record, which is valid; every other cut must fail.
	boundary := 2 + len("article")
	for n := 0; n < len(full); n++ {
		d, err := Decode(full[:n])
		if n == boundary {
			require.NoError(t, err)
			assert.Equal(t, Data{EntryType: "article"}, d)
			continue
		}
		assert.Errorf(t, err, "expected decode error at truncation length %d", n)
	}
}

func TestDecodeRejectsUnsortedFields(t *testing.T) {
	// Hand-build bytes with fields out of order: "b" before "a".
	buf := []byte{Version, 0}
	buf = appendField(buf, "b", "1")
	buf = appendField(buf, "a", "2")
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestDecodeRejectsDuplicateKey(t *testing.T) {
	buf := []byte{Version, 0}
	buf = appendField(buf, "a", "1")
	buf = appendField(buf, "a", "2")
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestDecodeRejectsUppercaseKey(t *testing.T) {
	buf := []byte{Version, 0}
	buf = appendField(buf, "A", "1")
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestDecodeRejectsInvalidUTF8Value(t *testing.T) {
	buf := []byte{Version, 0}
	key := "a"
	buf = append(buf, byte(len(key)))
	buf = append(buf, 1, 0) // value_len = 1 little endian
	buf = append(buf, key...)
	buf = append(buf, 0xFF) // invalid UTF-8 byte
	_, err := Decode(buf)
	assert.Error(t, err)
}

func appendField(buf []byte, key, value string) []byte {
	buf = append(buf, byte(len(key)))
	buf = append(buf, byte(len(value)), 0)
	buf = append(buf, key...)
	buf = append(buf, value...)
	return buf
}
