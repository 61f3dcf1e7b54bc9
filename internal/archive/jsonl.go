// Package archive exports and imports board snapshots as JSONL. Each line is
// one record tagged with its kind; projects come first, then columns, then
// tasks in ordinal order. Snapshots go to a local file or an S3 object.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mesh-intelligence/boards/pkg/types"
)

// Record kinds.
const (
	KindProject = "project"
	KindColumn  = "column"
	KindTask    = "task"
)

// maxLine bounds a single JSONL record.
const maxLine = 1 << 20

// Snapshot is the full contents of a store.
type Snapshot struct {
	Projects []*types.Project
	Columns  []*types.Column
	Tasks    []*types.Task
}

type record struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode writes the snapshot as JSONL.
func Encode(w io.Writer, snap *Snapshot) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	write := func(kind string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", kind, err)
		}
		if err := enc.Encode(record{Kind: kind, Payload: payload}); err != nil {
			return fmt.Errorf("writing %s: %w", kind, err)
		}
		return nil
	}
	for _, p := range snap.Projects {
		if err := write(KindProject, p); err != nil {
			return err
		}
	}
	for _, c := range snap.Columns {
		if err := write(KindColumn, c); err != nil {
			return err
		}
	}
	for _, t := range snap.Tasks {
		if err := write(KindTask, t); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	return nil
}

// Decode reads a JSONL snapshot. Blank lines and unknown kinds are skipped;
// a line that is not valid JSON is an error.
func Decode(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var err error
		switch rec.Kind {
		case KindProject:
			var p types.Project
			if err = json.Unmarshal(rec.Payload, &p); err == nil {
				snap.Projects = append(snap.Projects, &p)
			}
		case KindColumn:
			var c types.Column
			if err = json.Unmarshal(rec.Payload, &c); err == nil {
				snap.Columns = append(snap.Columns, &c)
			}
		case KindTask:
			var t types.Task
			if err = json.Unmarshal(rec.Payload, &t); err == nil {
				snap.Tasks = append(snap.Tasks, &t)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: decoding %s: %w", line, rec.Kind, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return snap, nil
}
