package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	cases := map[string]string{
		"rfc3339":      "2024-10-10T10:10:10Z",
		"rfc3339 zone": "2024-10-10T12:10:10+02:00",
		"unix seconds": strconv.FormatInt(want.Unix(), 10),
		"unix millis":  strconv.FormatInt(want.UnixMilli(), 10),
	}
	for name, in := range cases {
		got, ok := ParseTime(in)
		assert.True(t, ok, name)
		assert.True(t, got.Equal(want), name)
		assert.Equal(t, time.UTC, got.Location(), name)
	}

	got, ok := ParseTime("2024-10-10T10:10:10.5Z")
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, got.Sub(want))

	for _, bad := range []string{"", "  ", "yesterday", "-5"} {
		_, ok := ParseTime(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 42, ParseIntDefault(" 42 ", 7))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitAndTrim(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitAndTrim(""))
}
