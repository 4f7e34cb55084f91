// Package snapshot reads and writes the immutable index and embedding files.
//
// Layout: 4-byte magic, 2-byte kind, 2-byte version, 4-byte CRC32 (IEEE) of the
// payload, 8-byte payload length, then the zstd-compressed JSON payload. Files
// are written to a temporary sibling, fsynced and renamed into place.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the current on-disk format version.
const Version uint16 = 1

const headerSize = 20

var magic = [4]byte{'H', 'S', 'N', 'P'}

// Kind tags what a snapshot holds so an index is never loaded as embeddings.
type Kind uint16

// Known kinds.
const (
	KindIndex      Kind = 1
	KindEmbeddings Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindEmbeddings:
		return "embeddings"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

// ErrCorrupt marks a snapshot that failed magic, version, kind or checksum checks.
var ErrCorrupt = errors.New("corrupt snapshot")

// Encode serializes v as a snapshot of the given kind.
func Encode(w io.Writer, kind Kind, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("new zstd encoder: %w", err)
	}
	payload := enc.EncodeAll(raw, nil)
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd encoder: %w", err)
	}

	var header [headerSize]byte
	copy(header[0:4], magic[:])
	binary.BigEndian.PutUint16(header[4:6], uint16(kind))
	binary.BigEndian.PutUint16(header[6:8], Version)
	binary.BigEndian.PutUint32(header[8:12], crc32.ChecksumIEEE(payload))
	binary.BigEndian.PutUint64(header[12:20], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Decode verifies and decodes a snapshot of the given kind into v.
func Decode(r io.Reader, kind Kind, v any) error {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(header[0:4], magic[:]) {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, header[0:4])
	}
	if got := Kind(binary.BigEndian.Uint16(header[4:6])); got != kind {
		return fmt.Errorf("%w: expected %s, found %s", ErrCorrupt, kind, got)
	}
	if got := binary.BigEndian.Uint16(header[6:8]); got != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, got)
	}
	sum := binary.BigEndian.Uint32(header[8:12])
	size := binary.BigEndian.Uint64(header[12:20])

	payload, err := io.ReadAll(io.LimitReader(r, int64(size)+1))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if uint64(len(payload)) != size {
		return fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(payload), size)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("new zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrCorrupt, kind, err)
	}
	return nil
}

// WriteFile atomically replaces path with a snapshot of v.
func WriteFile(path string, kind Kind, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := Encode(tmp, kind, v); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp snapshot: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return syncDir(dir)
}

// ReadFile loads a snapshot of the given kind from path into v.
func ReadFile(path string, kind Kind, v any) error {
	// #nosec G304 -- path comes from configuration.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s snapshot: %w", kind, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := Decode(f, kind, v); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func syncDir(dir string) error {
	// #nosec G304 -- dir is the snapshot's own directory.
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open snapshot directory: %w", err)
	}
	defer func() {
		_ = d.Close()
	}()
	// Some filesystems do not support directory fsync.
	_ = d.Sync()
	return nil
}
