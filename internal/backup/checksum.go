package backup

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const (
	// MinSnapshotSize is the sanity floor below which a snapshot is treated
	// as corrupt.
	MinSnapshotSize = 1024

	// checksumWindow is the prefix/suffix window covered by the fast checksum.
	checksumWindow = 64 * 1024

	// tailThreshold is the file size above which the trailing window is
	// also hashed.
	tailThreshold = 128 * 1024
)

// FastChecksum computes the bounded-cost integrity digest of a file:
// SHA-256 over the little-endian 8-byte file size, the first 64KiB, and,
// for files larger than 128KiB, the last 64KiB.
//
// Bytes between the two windows are deliberately not covered; the digest
// detects truncation, header corruption and trailer corruption at a cost
// independent of file size. Full-content hashing is reserved for small
// transported buffers (FullChecksum). Do not change this windowing: stored
// checksums from earlier backups must keep verifying.
func FastChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file for checksum: %w", err)
	}
	size := info.Size()

	h := sha256.New()

	var sizeBytes [8]byte
	binary.LittleEndian.PutUint64(sizeBytes[:], uint64(size))
	h.Write(sizeBytes[:])

	head := make([]byte, min64(checksumWindow, size))
	if _, err := io.ReadFull(f, head); err != nil {
		return "", fmt.Errorf("failed to read file start: %w", err)
	}
	h.Write(head)

	if size > tailThreshold {
		if _, err := f.Seek(-checksumWindow, io.SeekEnd); err != nil {
			return "", fmt.Errorf("failed to seek to file end: %w", err)
		}
		tail := make([]byte, checksumWindow)
		if _, err := io.ReadFull(f, tail); err != nil {
			return "", fmt.Errorf("failed to read file end: %w", err)
		}
		h.Write(tail)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FullChecksum hashes an entire in-memory buffer. Used to verify transported
// restore payloads in full before they are written anywhere.
func FullChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
