package cache

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is the on-disk blob format. Blobs written with any other
// version are treated as misses.
const FormatVersion = 1

// Extension is appended to every blob name.
const Extension = ".cbz"

// MaxDecompressedSize bounds the decompressed payload of a blob (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// Kind classifies a blob.
type Kind string

const (
	KindReference Kind = "reference"
	KindProfile   Kind = "profile"
)

// ErrChecksum is returned when a payload does not match its header checksum.
var ErrChecksum = errors.New("checksum mismatch")

// Header is the plain-text first line of a blob.
type Header struct {
	Format      int               `json:"format"`
	Kind        Kind              `json:"kind"`
	Key         string            `json:"key"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Checksum    string            `json:"checksum"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// WriteBlob writes v as header line + gzip-compressed JSON payload. The file
// is written to a temp file beside path and renamed into place, so readers
// never observe a partial blob. Concurrent writers of one path still race;
// the last rename wins.
func WriteBlob(path string, h Header, v any) (Header, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return h, fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return h, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return h, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return h, fmt.Errorf("closing gzip writer: %w", err)
	}

	h.Format = FormatVersion
	h.Checksum = checksum(compressed.Bytes())

	headerBytes, err := json.Marshal(h)
	if err != nil {
		return h, fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return h, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return h, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(headerBytes); err != nil {
		cleanup()
		return h, fmt.Errorf("writing header: %w", err)
	}
	if _, err := tmp.Write([]byte("\n")); err != nil {
		cleanup()
		return h, fmt.Errorf("writing header newline: %w", err)
	}
	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		cleanup()
		return h, fmt.Errorf("writing compressed payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return h, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return h, fmt.Errorf("renaming blob: %w", err)
	}
	return h, nil
}

// ReadHeader reads only the header line of a blob.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header, _, err := readHeader(bufio.NewReader(f))
	return header, err
}

// ReadBlob reads a blob, verifies its checksum and decodes the payload into v.
func ReadBlob(path string, v any) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header, reader, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	if header.Format != FormatVersion {
		return header, fmt.Errorf("unsupported format version %d (want %d)", header.Format, FormatVersion)
	}

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return header, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return header, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return header, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return header, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return header, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	if v != nil {
		if err := json.Unmarshal(decompressed, v); err != nil {
			return header, fmt.Errorf("parsing payload: %w", err)
		}
	}
	return header, nil
}

// VerifyBlob checks that a blob is readable and its checksum matches.
func VerifyBlob(path string) (*Header, error) {
	var payload json.RawMessage
	return ReadBlob(path, &payload)
}

func readHeader(r *bufio.Reader) (*Header, *bufio.Reader, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	return &header, r, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
