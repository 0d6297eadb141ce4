package stats

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CPEStat/internal/model"
)

func triple(part, vendor, product string) model.Triple {
	return model.Triple{Part: part, Vendor: vendor, Product: product}
}

func TestGroupCount(t *testing.T) {
	triples := []model.Triple{
		triple("A", "x", "1"),
		triple("A", "y", "2"),
		triple("B", "x", "3"),
	}

	byPart, err := GroupCount(triples, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.GroupCount{
		{Keys: []string{"A"}, Count: 2},
		{Keys: []string{"B"}, Count: 1},
	}, byPart)

	byVendor, err := GroupCount(triples, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.GroupCount{
		{Keys: []string{"A", "x"}, Count: 1},
		{Keys: []string{"A", "y"}, Count: 1},
		{Keys: []string{"B", "x"}, Count: 1},
	}, byVendor)

	byProduct, err := GroupCount(triples, 3)
	require.NoError(t, err)
	assert.Len(t, byProduct, 3)
	for _, group := range byProduct {
		assert.Len(t, group.Keys, 3)
		assert.Equal(t, 1, group.Count)
	}
}

func TestGroupCountOrdering(t *testing.T) {
	triples := []model.Triple{
		triple("o", "linux", "kernel"),
		triple("h", "cisco", "router"),
		triple("a", "apache", "httpd"),
		triple("a", "apache", "tomcat"),
		triple("a", "nginx", "nginx"),
	}

	groups, err := GroupCount(triples, 1)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a"}, groups[0].Keys)
	assert.Equal(t, 3, groups[0].Count)
	// 计数相同的分组按字典序
	assert.Equal(t, []string{"h"}, groups[1].Keys)
	assert.Equal(t, []string{"o"}, groups[2].Keys)
	assert.Equal(t, 1, groups[2].Count)
}

func TestGroupCountSumsToInput(t *testing.T) {
	triples := []model.Triple{
		triple("a", "v1", "p1"),
		triple("a", "v1", "p2"),
		triple("a", "v2", "p1"),
		triple("o", "v1", "p1"),
	}

	for arity := 1; arity <= 3; arity++ {
		groups, err := GroupCount(triples, arity)
		require.NoError(t, err)
		total := 0
		for _, group := range groups {
			total += group.Count
		}
		assert.Equal(t, len(triples), total, "arity=%d", arity)
	}
}

func TestGroupCountEmpty(t *testing.T) {
	groups, err := GroupCount(nil, 2)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroupCountInvalidArity(t *testing.T) {
	for _, arity := range []int{0, 4, -1} {
		_, err := GroupCount([]model.Triple{triple("a", "b", "c")}, arity)
		assert.True(t, errors.Is(err, ErrInvalidArity), "arity=%d", arity)
	}
}

func TestCounterStreaming(t *testing.T) {
	counter, err := NewCounter(1)
	require.NoError(t, err)

	for _, part := range []string{"a", "a", "o"} {
		counter.Add(triple(part, "vendor", "product"))
	}
	assert.Equal(t, [][]string{{"a", "2"}, {"o", "1"}}, GroupRows(counter.Result()))
}

func TestCounterKeysAreCaseSensitive(t *testing.T) {
	groups, err := GroupCount([]model.Triple{
		triple("a", "Apache", "x"),
		triple("a", "apache", "x"),
	}, 2)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}
