package tokens

import (
	"testing"

	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)

	n, err := c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = c.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnknownEncoding(t *testing.T) {
	_, err := NewCounter("no-such-encoding")
	require.Error(t, err)
}

func TestForModel(t *testing.T) {
	c, err := ForModel("gpt-4")
	require.NoError(t, err)
	n, err := c.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewCounterFor(t *testing.T) {
	c, err := NewCounterFor("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, c.Name())

	c, err = NewCounterFor("", "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "encoding of gpt-4", c.Name())

	c, err = NewCounterFor("", "llama3:latest")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, c.Name())

	c, err = NewCounterFor("p50k_base", "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "p50k_base", c.Name())

	_, err = NewCounterFor("no-such-encoding", "gpt-4")
	require.Error(t, err)
}

func TestCountRecordsByDistance(t *testing.T) {
	c, err := NewCounter(DefaultEncoding)
	require.NoError(t, err)

	records := []conversation.Record{
		{Role: conversation.RoleUser, Text: "hello world", Distance: 1},
		{Role: conversation.RoleAssistant, Text: "hello", Distance: 1},
		{Role: conversation.RoleUser, Text: "hello world", Distance: 0},
	}
	stats, err := c.CountRecords(records)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.ByDistance[1])
	assert.Equal(t, 2, stats.ByDistance[0])
	assert.Equal(t, []conversation.Distance{0, 1}, stats.Distances())
}
