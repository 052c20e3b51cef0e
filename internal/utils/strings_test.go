package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single value", input: "fakecairo", expected: []string{"fakecairo"}},
		{name: "varied spacing", input: "fakecairo,  fakekolkata , fakemontreal", expected: []string{"fakecairo", "fakekolkata", "fakemontreal"}},
		{name: "whitespace separated", input: "fakecairo fakemontreal\tfakekolkata", expected: []string{"fakecairo", "fakemontreal", "fakekolkata"}},
		{name: "repeats dropped", input: "fakemontreal,fakecairo,fakemontreal", expected: []string{"fakemontreal", "fakecairo"}},
		{name: "trailing comma", input: "RUN_COMPLETED,", expected: []string{"RUN_COMPLETED"}},
		{name: "only spaces", input: "   ", expected: nil},
		{name: "comma only", input: ",", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseList(tt.input))
		})
	}
}

func TestParseIntList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int
	}{
		{name: "empty", input: "", expected: nil},
		{name: "values", input: "23, 24,25", expected: []int{23, 24, 25}},
		{name: "range", input: "1-4", expected: []int{1, 2, 3, 4}},
		{name: "mixed", input: "12-14 16", expected: []int{12, 13, 14, 16}},
		{name: "negative value", input: "-2,3", expected: []int{-2, 3}},
		{name: "negative range", input: "-2-1", expected: []int{-2, -1, 0, 1}},
		{name: "single point range", input: "7-7", expected: []int{7}},
		{name: "repeats kept", input: "3,3", expected: []int{3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntList(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseIntListRejects(t *testing.T) {
	for _, input := range []string{"two", "1-", "5-1", "1-x", "0-20000"} {
		_, err := ParseIntList(input)
		assert.Error(t, err, input)
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Unique([]int{3, 1, 3, 2, 1}))
	assert.Empty(t, Unique([]string(nil)))
}

func TestTimerLogsDuration(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	timer := NewTimer("optimize", log)
	timer.now = func() time.Time { return timer.start.Add(2 * time.Second) }

	d := timer.StopWithFields(map[string]interface{}{"run_id": "abc"})
	assert.Equal(t, 2*time.Second, d)
	assert.Contains(t, buf.String(), `"operation":"optimize"`)
	assert.Contains(t, buf.String(), `"run_id":"abc"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestTimerWarnsWhenSlow(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	timer := NewTimer("sweep", log)
	timer.now = func() time.Time { return timer.start.Add(SlowThreshold + time.Second) }
	timer.Stop()

	assert.Contains(t, buf.String(), `"level":"warn"`)
}
