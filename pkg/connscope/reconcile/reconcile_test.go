package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func conn(id string, up, down int64) Conn {
	return Conn{ID: id, Upload: up, Download: down}
}

func displayed(id string, up, down int64) Displayed {
	return Displayed{Conn: conn(id, up, down)}
}

// TestMergeKeepsPositions verifies that when every previous connection
// survives and the snapshot size is unchanged, nothing moves.
func TestMergeKeepsPositions(t *testing.T) {
	assert := assert.New(t)

	prev := []Displayed{
		displayed("a", 10, 5),
		displayed("b", 20, 8),
		displayed("c", 1, 1),
	}
	// Snapshot order differs from display order.
	next := []Conn{
		conn("c", 4, 2),
		conn("a", 15, 5),
		conn("b", 21, 9),
	}

	out := Merge(prev, next)

	assert.Len(out, 3)
	assert.Equal("a", out[0].ID)
	assert.Equal("b", out[1].ID)
	assert.Equal("c", out[2].ID)
}

// TestMergeReplacesClosedConnection covers the worked reconciliation
// example: a closed connection frees its slot and the newly appeared
// one slides into it rather than appending.
func TestMergeReplacesClosedConnection(t *testing.T) {
	assert := assert.New(t)

	prev := []Displayed{
		displayed("a", 10, 5),
		displayed("b", 20, 8),
	}
	next := []Conn{
		conn("b", 25, 10),
		conn("c", 1, 1),
	}

	out := Merge(prev, next)

	assert.Len(out, 2)
	assert.Equal("c", out[0].ID)
	assert.Zero(out[0].CurUpload)
	assert.Zero(out[0].CurDownload)
	assert.Equal("b", out[1].ID)
	assert.Equal(int64(5), out[1].CurUpload)
	assert.Equal(int64(2), out[1].CurDownload)
}

func TestMergeDeltas(t *testing.T) {
	assert := assert.New(t)

	prev := []Displayed{displayed("a", 100, 50)}
	out := Merge(prev, []Conn{conn("a", 175, 50)})

	assert.Equal(int64(75), out[0].CurUpload)
	assert.Equal(int64(0), out[0].CurDownload)

	// A counter reset produces a negative delta; the merge passes the
	// plain difference through.
	out = Merge(out, []Conn{conn("a", 10, 10)})
	assert.Equal(int64(-165), out[0].CurUpload)
	assert.Equal(int64(-40), out[0].CurDownload)
}

// TestMergeShrink exercises the rule that a match landing beyond the
// new snapshot's length is discarded: the connection re-enters through
// the unplaced pool with zeroed deltas.
func TestMergeShrink(t *testing.T) {
	assert := assert.New(t)

	prev := []Displayed{
		displayed("a", 1, 1),
		displayed("b", 2, 2),
		displayed("c", 3, 3),
		displayed("d", 4, 4),
	}
	next := []Conn{
		conn("d", 8, 8),
		conn("b", 4, 4),
	}

	out := Merge(prev, next)

	assert.Len(out, 2)
	// b keeps index 1; d's old index 3 is out of bounds, so it fills
	// freed index 0 as if it were new.
	assert.Equal("d", out[0].ID)
	assert.Zero(out[0].CurUpload)
	assert.Zero(out[0].CurDownload)
	assert.Equal("b", out[1].ID)
	assert.Equal(int64(2), out[1].CurUpload)
}

func TestMergeGrow(t *testing.T) {
	assert := assert.New(t)

	prev := []Displayed{displayed("a", 1, 1)}
	next := []Conn{
		conn("b", 1, 1),
		conn("a", 2, 2),
		conn("c", 1, 1),
	}

	out := Merge(prev, next)

	assert.Equal("a", out[0].ID)
	assert.Equal(int64(1), out[0].CurUpload)
	assert.Equal("b", out[1].ID)
	assert.Equal("c", out[2].ID)
}

// TestMergeCompleteness checks that every snapshot identifier appears
// exactly once regardless of overlap with the previous list.
func TestMergeCompleteness(t *testing.T) {
	cases := []struct {
		name string
		prev []Displayed
		next []Conn
	}{
		{"empty-previous", nil, []Conn{conn("a", 1, 1), conn("b", 2, 2)}},
		{"empty-snapshot", []Displayed{displayed("a", 1, 1)}, nil},
		{"no-overlap", []Displayed{displayed("x", 1, 1)}, []Conn{conn("a", 1, 1)}},
		{"full-overlap", []Displayed{displayed("a", 1, 1)}, []Conn{conn("a", 2, 2)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Merge(tc.prev, tc.next)
			assert.Len(t, out, len(tc.next))

			seen := make(map[string]int)
			for _, d := range out {
				seen[d.ID]++
			}
			for _, c := range tc.next {
				assert.Equal(t, 1, seen[c.ID], "id %q", c.ID)
			}
		})
	}
}

// TestMergeMissingID treats entries without an identifier as always
// unplaced, even when a previous entry also lacked one.
func TestMergeMissingID(t *testing.T) {
	assert := assert.New(t)

	prev := []Displayed{
		displayed("", 5, 5),
		displayed("a", 1, 1),
	}
	next := []Conn{
		conn("a", 2, 2),
		conn("", 9, 9),
	}

	out := Merge(prev, next)

	assert.Equal("", out[0].ID)
	assert.Zero(out[0].CurUpload)
	assert.Equal("a", out[1].ID)
	assert.Equal(int64(1), out[1].CurUpload)
}

func TestMergeEmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Empty(t, Merge([]Displayed{displayed("a", 1, 1)}, nil))
}
