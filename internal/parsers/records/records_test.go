package records

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// partSupplier serves packed parts the way an item store would, copying at
// most len(dst) bytes of the first part at or after the requested index.
func partSupplier(parts [][]byte) PartFunc {
	return func(part uint8, dst []byte) (uint8, int, error) {
		if int(part) >= len(parts) {
			return 0, 0, types.ErrItemNotFound
		}
		return part, copy(dst, parts[part]), nil
	}
}

func unpackAll(t *testing.T, parts [][]byte, limit int) (*Record, error) {
	t.Helper()
	key := types.XattrKey(1, 2, 3)
	first := parts[0]
	if len(first) > limit {
		first = first[:limit]
	}
	return Unpack(key, first, partSupplier(parts), limit)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	partPayload := types.XattrMaxPartSize
	tests := []struct {
		name     string
		nameLen  int
		valueLen int
	}{
		{"empty value", 6, 0},
		{"small", 10, 20},
		{"fills first part exactly", 10, partPayload - types.XattrHeaderSize - 10},
		{"one byte into second part", 10, partPayload - types.XattrHeaderSize - 10 + 1},
		{"fills two parts exactly", 10, 2*partPayload - types.XattrHeaderSize - 10},
		{"max name", types.XattrMaxNameLen, 100},
		{"max value", 10, types.XattrMaxValueLen},
		{"max name and value", types.XattrMaxNameLen, types.XattrMaxValueLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := bytes.Repeat([]byte("n"), tt.nameLen)
			value := make([]byte, tt.valueLen)
			for i := range value {
				value[i] = byte(i * 7)
			}

			parts, err := Pack(name, value)
			require.NoError(t, err)
			assert.Len(t, parts, types.XattrNrParts(tt.nameLen, tt.valueLen))

			total := 0
			for i, p := range parts {
				total += len(p)
				assert.NotEmpty(t, p, "part %d", i)
				if i < len(parts)-1 {
					assert.Len(t, p, types.XattrMaxPartSize, "non-final part %d", i)
				}
			}
			assert.Equal(t, types.XattrHeaderSize+tt.nameLen+tt.valueLen, total)

			rec, err := unpackAll(t, parts, types.XattrHeaderSize+types.XattrMaxNameLen+types.XattrMaxValueLen)
			require.NoError(t, err)
			assert.True(t, rec.Complete())
			assert.Equal(t, name, rec.Name())
			assert.Equal(t, value, rec.Value())
			assert.Equal(t, len(parts), rec.NrParts())
		})
	}
}

func TestPackUnpackEverySplit(t *testing.T) {
	name := []byte("user.split")
	limit := types.XattrHeaderSize + types.XattrMaxNameLen + types.XattrMaxValueLen

	for valueLen := 0; valueLen <= 3*types.XattrMaxPartSize; valueLen++ {
		value := bytes.Repeat([]byte{byte(valueLen)}, valueLen)
		parts, err := Pack(name, value)
		require.NoError(t, err)

		rec, err := unpackAll(t, parts, limit)
		require.NoError(t, err, "value length %d", valueLen)
		require.Equal(t, value, rec.Value(), "value length %d", valueLen)
	}
}

func TestPackLimits(t *testing.T) {
	_, err := Pack(bytes.Repeat([]byte("n"), types.XattrMaxNameLen+1), nil)
	assert.ErrorIs(t, err, types.ErrRange)

	_, err = Pack([]byte("user.a"), make([]byte, types.XattrMaxValueLen+1))
	assert.ErrorIs(t, err, types.ErrTooBig)
}

func TestUnpackLimited(t *testing.T) {
	name := []byte("user.limited")
	value := bytes.Repeat([]byte("v"), 2000)
	parts, err := Pack(name, value)
	require.NoError(t, err)

	limit := types.XattrHeaderSize + len(name) + 10
	rec, err := unpackAll(t, parts, limit)
	require.NoError(t, err)
	assert.False(t, rec.Complete())
	assert.Equal(t, limit, rec.Copied())
	assert.Equal(t, types.XattrHeaderSize+len(name)+len(value), rec.Header().FullBytes())
	assert.Equal(t, name, rec.Name())
	assert.Equal(t, value[:10], rec.Value())
}

func TestUnpackCorruption(t *testing.T) {
	name := []byte("user.corrupt")
	value := bytes.Repeat([]byte("v"), 1200)
	limit := types.XattrHeaderSize + types.XattrMaxNameLen + types.XattrMaxValueLen

	good, err := Pack(name, value)
	require.NoError(t, err)
	require.Len(t, good, 3)

	tests := []struct {
		name   string
		mutate func(parts [][]byte) ([][]byte, PartFunc)
	}{
		{
			name: "missing final part",
			mutate: func(parts [][]byte) ([][]byte, PartFunc) {
				return parts, partSupplier(parts[:2])
			},
		},
		{
			name: "gap in part indices",
			mutate: func(parts [][]byte) ([][]byte, PartFunc) {
				return parts, func(part uint8, dst []byte) (uint8, int, error) {
					if part == 1 {
						return 2, copy(dst, parts[2]), nil
					}
					return part, copy(dst, parts[part]), nil
				}
			},
		},
		{
			name: "truncated final part",
			mutate: func(parts [][]byte) ([][]byte, PartFunc) {
				short := [][]byte{parts[0], parts[1], parts[2][:len(parts[2])-1]}
				return short, partSupplier(short)
			},
		},
		{
			name: "header too short",
			mutate: func(parts [][]byte) ([][]byte, PartFunc) {
				short := [][]byte{parts[0][:4]}
				return short, partSupplier(short)
			},
		},
		{
			name: "first part missing the name",
			mutate: func(parts [][]byte) ([][]byte, PartFunc) {
				short := [][]byte{parts[0][:types.XattrHeaderSize+3]}
				return short, partSupplier(short)
			},
		},
		{
			name: "header claims more parts than stored",
			mutate: func(parts [][]byte) ([][]byte, PartFunc) {
				first := append([]byte(nil), parts[0]...)
				binary.LittleEndian.PutUint16(first[0:2], 0xffff)
				first[2] = 0xff
				bad := [][]byte{first, parts[1], parts[2]}
				return bad, partSupplier(bad)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			copied := make([][]byte, len(good))
			for i := range good {
				copied[i] = append([]byte(nil), good[i]...)
			}
			parts, next := tt.mutate(copied)
			first := parts[0]
			_, err := Unpack(types.XattrKey(1, 2, 3), first, next, limit)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrCorrupt)
		})
	}
}

func TestUnpackRejectsNonzeroStart(t *testing.T) {
	parts, err := Pack([]byte("user.a"), []byte("b"))
	require.NoError(t, err)

	_, err = Unpack(types.XattrKey(1, 2, 3).WithPart(1), parts[0], partSupplier(parts), 1024)
	assert.ErrorIs(t, err, types.ErrCorrupt)
}

func TestNameHash(t *testing.T) {
	name := []byte("user.hash")
	expected := ^crc32.Checksum(name, crc32.MakeTable(crc32.Castagnoli))
	assert.Equal(t, expected, NameHash(name))
	assert.Equal(t, NameHash(name), NameHash([]byte("user.hash")))
	assert.NotEqual(t, NameHash(name), NameHash([]byte("user.hasi")))
}

func TestDecodeHeader(t *testing.T) {
	rec, err := Encode([]byte("user.hdr"), []byte("value"))
	require.NoError(t, err)

	h, err := DecodeHeader(rec)
	require.NoError(t, err)
	assert.Equal(t, Header{NameLen: 8, ValueLen: 5}, h)
	assert.Equal(t, len(rec), h.FullBytes())
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, rec[3:8], "padding is zeroed")
}
