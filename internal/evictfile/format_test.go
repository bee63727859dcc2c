package evictfile

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	compressible := bytes.Repeat([]byte("spill-block-"), 1024)

	random := make([]byte, 4096)
	rand.New(rand.NewSource(42)).Read(random)

	tests := []struct {
		name    string
		payload []byte
		comp    Compression
		want    Compression
	}{
		{"NoneCompressible", compressible, CompressionNone, CompressionNone},
		{"LZ4Compressible", compressible, CompressionLZ4, CompressionLZ4},
		{"ZSTDCompressible", compressible, CompressionZSTD, CompressionZSTD},
		{"LZ4Random", random, CompressionLZ4, CompressionNone},
		{"ZSTDRandom", random, CompressionZSTD, CompressionNone},
		{"Empty", nil, CompressionZSTD, CompressionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.payload, tt.comp)
			require.NoError(t, err)

			h, err := ReadHeader(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Compression)
			assert.Equal(t, uint64(len(tt.payload)), h.RawLen)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, len(tt.payload), len(got))
			assert.True(t, bytes.Equal(tt.payload, got))
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdef"), 500)
	data, err := Encode(payload, CompressionLZ4)
	require.NoError(t, err)

	t.Run("Truncated", func(t *testing.T) {
		_, err := Decode(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := Decode(data[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] = 'X'
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Checksum", func(t *testing.T) {
		raw, err := Encode(payload, CompressionNone)
		require.NoError(t, err)
		raw[HeaderSize+3] ^= 0xFF
		_, err = Decode(raw)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("FutureVersion", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[4] = Version + 1
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}

func TestPath(t *testing.T) {
	p := Path("/tmp/run1", "cache", 42, ".dat")
	assert.Equal(t, filepath.Join("/tmp/run1", "cache000000042.dat"), p)

	id, ok := ParseID(p, "cache", ".dat")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = ParseID("/tmp/run1/other000000042.dat", "cache", ".dat")
	assert.False(t, ok)
	_, ok = ParseID("/tmp/run1/cache42.dat", "cache", ".dat")
	assert.False(t, ok)
	_, ok = ParseID("/tmp/run1/cacheabcdefghi.dat", "cache", ".dat")
	assert.False(t, ok)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
