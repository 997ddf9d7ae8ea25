package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bre/mailfile/internal/index"
	"github.com/bre/mailfile/internal/mailstore"
	"github.com/klauspost/compress/flate"
)

// SnapshotPath is the reserved path for the index snapshot object.
// Callers must not write to it directly; the engine owns it.
const SnapshotPath = "_SNAPSHOT_PATH"

// snapshotRecord is one path's serialized entry: [seq, metadata,
// [versions...]], matching §3's `{tree: {path -> [seq, metadata,
// [versions...]]}}` shape exactly so the wire format stays a plain JSON
// array rather than inventing a Go-specific object shape.
type snapshotRecord struct {
	Seq      mailstore.Seq
	Metadata map[string]any
	Versions []mailstore.Seq
}

func (r snapshotRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Seq, r.Metadata, r.Versions})
}

func (r *snapshotRecord) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("snapshot: decode record: %w", err)
	}
	var seq float64
	if err := json.Unmarshal(raw[0], &seq); err != nil {
		return fmt.Errorf("snapshot: decode seq: %w", err)
	}
	r.Seq = mailstore.Seq(seq)
	if err := json.Unmarshal(raw[1], &r.Metadata); err != nil {
		return fmt.Errorf("snapshot: decode metadata: %w", err)
	}
	var versions []float64
	if err := json.Unmarshal(raw[2], &versions); err != nil {
		return fmt.Errorf("snapshot: decode versions: %w", err)
	}
	r.Versions = make([]mailstore.Seq, len(versions))
	for i, v := range versions {
		r.Versions[i] = mailstore.Seq(v)
	}
	return nil
}

// snapshotDoc is the full decompressed JSON document stored at
// SnapshotPath.
type snapshotDoc struct {
	Tree map[string]snapshotRecord `json:"tree"`
	Seen []mailstore.Seq           `json:"seen"`
}

// encodeSnapshot serializes idx+seen and compresses the JSON with
// klauspost/compress's flate implementation, matching the spec's
// "standard deflate-family codec" wording.
func encodeSnapshot(idx *index.Index, seen map[mailstore.Seq]bool) ([]byte, error) {
	doc := snapshotDoc{Tree: make(map[string]snapshotRecord)}
	for path, entry := range idx.Snapshot() {
		doc.Tree[path] = snapshotRecord{
			Seq:      entry.LatestSeq,
			Metadata: entry.Metadata,
			Versions: entry.VersionSeqs(),
		}
	}
	for sq := range seen {
		doc.Seen = append(doc.Seen, sq)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal: %w", err)
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("snapshot: new flate writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("snapshot: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: flush compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSnapshot reverses encodeSnapshot.
func decodeSnapshot(compressed []byte) (snapshotDoc, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return snapshotDoc{}, fmt.Errorf("snapshot: decompress: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return snapshotDoc{}, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return doc, nil
}
