package archive

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boards/pkg/types"
)

func sampleSnapshot() *Snapshot {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &Snapshot{
		Projects: []*types.Project{{ProjectID: "p1", Title: "Launch", CreatedAt: at}},
		Columns: []*types.Column{
			{ColumnID: "c1", ProjectID: "p1", Title: "todo", CreatedAt: at},
			{ColumnID: "c2", ProjectID: "p1", Title: "done", CreatedAt: at.Add(time.Second)},
		},
		Tasks: []*types.Task{
			{TaskID: "t1", ColumnID: "c1", Ordinal: 1, Title: "a", CreatedAt: at, UpdatedAt: at},
			{TaskID: "t2", ColumnID: "c1", Ordinal: 2, Title: "b", Description: "second", CreatedAt: at, UpdatedAt: at},
			{TaskID: "t3", ColumnID: "c2", Ordinal: 1, Title: "c", CreatedAt: at, UpdatedAt: at},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	snap := sampleSnapshot()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], `"kind":"project"`)
	assert.Contains(t, lines[5], `"kind":"task"`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestDecode_SkipsBlankLinesAndUnknownKinds(t *testing.T) {
	input := `{"kind":"project","payload":{"project_id":"p1","title":"x"}}

{"kind":"label","payload":{"name":"urgent"}}
{"kind":"column","payload":{"column_id":"c1","project_id":"p1","title":"todo","extra":true}}
`
	snap, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, snap.Projects, 1)
	assert.Len(t, snap.Columns, 1)
	assert.Empty(t, snap.Tasks)
}

func TestDecode_MalformedLine(t *testing.T) {
	input := `{"kind":"project","payload":{"project_id":"p1","title":"x"}}
{not json
`
	_, err := Decode(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = Decode(strings.NewReader(`{"kind":"task","payload":{"ordinal":"first"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding task")
}
