package badger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/omnifs/pkg/storage"
)

// Database Key Namespace Design
// ==============================
//
// Every entry has one metadata record and, for files, a run of content
// chunks. Paths never contain control characters after normalization, so a
// NUL byte safely separates a path from its chunk index.
//
// Data Type        Prefix   Key Format                    Value Type
// ==================================================================
// Entry metadata   "m:"     m:<path>                      record (JSON)
// Content chunk    "d:"     d:<path>\x00<index uint32>    raw bytes
//
// Listing a directory is a prefix scan over "m:<path>/". Directories that
// were never created explicitly are implied by the keys below them.

const (
	prefixMeta  = "m:"
	prefixChunk = "d:"
)

func keyMeta(path string) []byte {
	return []byte(prefixMeta + path)
}

// keyMetaChildren is the scan prefix for entries below path.
func keyMetaChildren(path string) []byte {
	if path == "" {
		return []byte(prefixMeta)
	}
	return []byte(prefixMeta + path + "/")
}

func keyChunk(path string, index int) []byte {
	key := make([]byte, 0, len(prefixChunk)+len(path)+5)
	key = append(key, prefixChunk...)
	key = append(key, path...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint32(key, uint32(index))
}

// record is the metadata stored for every entry.
type record struct {
	Size        int64              `json:"size"`
	Chunks      int                `json:"chunks"`
	ContentType string             `json:"content_type,omitempty"`
	Modified    time.Time          `json:"modified"`
	Visibility  storage.Visibility `json:"visibility"`
	Directory   bool               `json:"directory,omitempty"`
}

func encodeRecord(r *record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &r, nil
}
