package evictfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/spill/internal/hash"
)

const (
	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 28

	// Version is the current format version.
	Version = 1
)

var magic = [4]byte{'S', 'P', 'I', 'L'}

var (
	// ErrCorrupt is returned when a file fails header or checksum validation.
	ErrCorrupt = errors.New("evictfile: corrupt file")

	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("evictfile: unsupported version")
)

// Header describes an eviction file.
type Header struct {
	Version     uint8
	Compression Compression
	RawLen      uint64
	StoredLen   uint64
	Checksum    uint32
}

// Ratio returns stored/raw, or 1 for an empty payload.
func (h Header) Ratio() float64 {
	if h.RawLen == 0 {
		return 1
	}
	return float64(h.StoredLen) / float64(h.RawLen)
}

func (h Header) marshal(dst []byte) {
	copy(dst[0:4], magic[:])
	dst[4] = h.Version
	dst[5] = byte(h.Compression)
	binary.LittleEndian.PutUint16(dst[6:], 0)
	binary.LittleEndian.PutUint64(dst[8:], h.RawLen)
	binary.LittleEndian.PutUint64(dst[16:], h.StoredLen)
	binary.LittleEndian.PutUint32(dst[24:], h.Checksum)
}

// ReadHeader parses and validates the header at the start of data.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if [4]byte(data[0:4]) != magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[0:4])
	}

	h := Header{
		Version:     data[4],
		Compression: Compression(data[5]),
		RawLen:      binary.LittleEndian.Uint64(data[8:]),
		StoredLen:   binary.LittleEndian.Uint64(data[16:]),
		Checksum:    binary.LittleEndian.Uint32(data[24:]),
	}
	if h.Version > Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if !h.Compression.valid() {
		return Header{}, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, h.Compression)
	}
	return h, nil
}

// Encode wraps payload in a header, compressing it with c when that pays off.
func Encode(payload []byte, c Compression) ([]byte, error) {
	stored, used, err := compress(payload, c)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderSize+len(stored))
	Header{
		Version:     Version,
		Compression: used,
		RawLen:      uint64(len(payload)),
		StoredLen:   uint64(len(stored)),
		Checksum:    hash.CRC32C(payload),
	}.marshal(out)
	copy(out[HeaderSize:], stored)
	return out, nil
}

// Decode validates data and returns the original payload.
func Decode(data []byte) ([]byte, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[HeaderSize:]
	if uint64(len(body)) != h.StoredLen {
		return nil, fmt.Errorf("%w: stored length %d, have %d", ErrCorrupt, h.StoredLen, len(body))
	}

	payload, err := decompress(body, h.Compression, h.RawLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !hash.VerifyCRC32C(payload, h.Checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return payload, nil
}

// Path returns the eviction file path for id.
func Path(dir, prefix string, id int64, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%09d%s", prefix, id, ext))
}

// ParseID extracts the id from a file name produced by Path.
func ParseID(name, prefix, ext string) (int64, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ext) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, prefix), ext)
	if len(digits) < 9 {
		return 0, false
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
