package output

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkPreservesOrderAcrossChannels(t *testing.T) {
	s := NewSink()
	s.Append(Normal, "a\n")
	s.Append(Error, "b\n")
	s.Append(Normal, "c\n")
	s.Append(Exception, "[exception] d\n")

	got := s.Snapshot()
	require.Len(t, got, 4)
	assert.Equal(t, []Record{
		{Channel: Normal, Text: "a\n"},
		{Channel: Error, Text: "b\n"},
		{Channel: Normal, Text: "c\n"},
		{Channel: Exception, Text: "[exception] d\n"},
	}, got)
	assert.Equal(t, "a\nb\nc\n[exception] d\n", s.Text())
}

func TestSinkClearThenAppend(t *testing.T) {
	s := NewSink()
	s.Append(Normal, "stale")
	s.Clear()

	for i := 0; i < 10; i++ {
		ch := Normal
		if i%3 == 0 {
			ch = Error
		}
		s.Append(ch, fmt.Sprint(i))
	}

	got := s.Snapshot()
	require.Len(t, got, 10)
	for i, r := range got {
		assert.Equal(t, fmt.Sprint(i), r.Text)
	}
}

func TestSinkSnapshotIsCopy(t *testing.T) {
	s := NewSink()
	s.Append(Normal, "x")

	snap := s.Snapshot()
	snap[0].Text = "mutated"

	assert.Equal(t, "x", s.Snapshot()[0].Text)
}

func TestSinkConcurrentAppend(t *testing.T) {
	s := NewSink()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Append(Normal, "x")
				_ = s.Len()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, s.Len())
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "exception", Exception.String())
	assert.Equal(t, "unknown", Channel(42).String())
}

func TestRecordJSONUsesChannelNames(t *testing.T) {
	data, err := json.Marshal(Record{Channel: Exception, Text: "[exception] x\n"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"exception","text":"[exception] x\n"}`, string(data))

	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"channel":"error","text":"e"}`), &r))
	assert.Equal(t, Record{Channel: Error, Text: "e"}, r)

	assert.Error(t, json.Unmarshal([]byte(`{"channel":"stdout"}`), &r))
}
