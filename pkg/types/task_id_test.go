package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskID(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      TaskRef
		malformed bool
	}{
		{name: "whole task", raw: "T1", want: TaskRef{Kind: WholeTask, TaskID: "T1"}},
		{name: "segment", raw: "T1#3", want: TaskRef{Kind: SegmentTask, TaskID: "T1", Segment: 3}},
		{name: "segment zero", raw: "abcd#0", want: TaskRef{Kind: SegmentTask, TaskID: "abcd", Segment: 0}},
		{name: "two separators", raw: "T1#2#3", malformed: true},
		{name: "empty", raw: "", malformed: true},
		{name: "empty task", raw: "#1", malformed: true},
		{name: "missing segment", raw: "T1#", malformed: true},
		{name: "negative segment", raw: "T1#-1", malformed: true},
		{name: "signed segment", raw: "T1#+1", malformed: true},
		{name: "non numeric segment", raw: "T1#x", malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTaskID(tt.raw)
			if tt.malformed {
				var malformed *MalformedTaskIDError
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, tt.raw, malformed.Raw)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompositeKey_RoundTrip(t *testing.T) {
	keys := []string{"T1", "0f3a9c", strings.Repeat("ab", 32)}
	for _, key := range keys {
		for segment := 0; segment < 16; segment++ {
			ref, err := ParseTaskID(CompositeKey(key, segment))
			require.NoError(t, err)
			assert.True(t, ref.IsSegment())
			assert.Equal(t, key, ref.TaskID)
			assert.Equal(t, segment, ref.Segment)
			assert.Equal(t, CompositeKey(key, segment), ref.String())
		}
	}
}

func TestDecodeTaskKey(t *testing.T) {
	hexKey := strings.Repeat("0a", 32)

	key, err := DecodeTaskKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0a), key[31])

	prefixed, err := DecodeTaskKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Equal(t, key, prefixed)

	_, err = DecodeTaskKey("zz")
	assert.Error(t, err)
	_, err = DecodeTaskKey("0a0b")
	assert.Error(t, err)
}

func TestTaskStatus(t *testing.T) {
	s, err := ParseTaskStatus("proven")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusProven, s)

	_, err = ParseTaskStatus("created")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	assert.Equal(t, TaskStatusProven, TaskStatusProven.Merge(TaskStatusProving))
	assert.Equal(t, TaskStatusProven, TaskStatusProving.Merge(TaskStatusProven))
	assert.Equal(t, TaskStatusProving, TaskStatus("").Merge(TaskStatusProving))
}
