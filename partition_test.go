// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import "testing"

func TestPartitionFileCoversWholeRange(t *testing.T) {
	lengths := []int64{0, 1, 500 * 1024 * 1024, 500*1024*1024 + 1, 1200 * 1024 * 1024}
	for _, length := range lengths {
		ranges := partitionFile(length)
		if len(ranges) == 0 {
			t.Fatalf("length %d: got no ranges", length)
		}
		var cursor int64
		for i, r := range ranges {
			if r.Start != cursor {
				t.Fatalf("length %d: range %d starts at %d, want %d", length, i, r.Start, cursor)
			}
			if r.End < r.Start {
				t.Fatalf("length %d: range %d has end %d < start %d", length, i, r.End, r.Start)
			}
			if r.End-r.Start > maxPartitionSize {
				t.Fatalf("length %d: range %d is %d bytes, exceeds cap %d", length, i, r.End-r.Start, maxPartitionSize)
			}
			if !r.Seekable {
				t.Fatalf("length %d: range %d not marked seekable", length, i)
			}
			cursor = r.End
		}
		if length > 0 && cursor != length {
			t.Fatalf("length %d: ranges cover up to %d, want %d", length, cursor, length)
		}
	}
}

func TestPartitionFileSingleRangeUnderCap(t *testing.T) {
	ranges := partitionFile(1024)
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1", len(ranges))
	}
	if ranges[0].Start != 0 || ranges[0].End != 1024 {
		t.Errorf("got %+v", ranges[0])
	}
}

func TestPartitionFileMultipleRangesOverCap(t *testing.T) {
	length := int64(3 * maxPartitionSize)
	ranges := partitionFile(length)
	if len(ranges) != 3 {
		t.Fatalf("got %d ranges, want 3", len(ranges))
	}
}

func TestStreamingRangeUnseekable(t *testing.T) {
	r := streamingRange()
	if r.Seekable {
		t.Error("streaming range must not be seekable")
	}
	if r.Start != 0 {
		t.Errorf("got start %d, want 0", r.Start)
	}
}

func TestCeilingDiv(t *testing.T) {
	cases := []struct{ x, y, want int64 }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{20, 10, 2},
	}
	for _, c := range cases {
		if got := ceilingDiv(c.x, c.y); got != c.want {
			t.Errorf("ceilingDiv(%d, %d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}
