package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Messages []string          `json:"messages" graph:"append"`
	Count    int               `json:"count"`
	Route    string            `json:"route"`
	Tags     map[string]string `json:"tags,omitempty"`
	Path     []string          `json:"processing_path" graph:"path"`
	internal int
}

func TestStructSchema_Merge(t *testing.T) {
	t.Parallel()

	schema, err := NewStructSchema[testState]()
	require.NoError(t, err)

	state := testState{Messages: []string{"a"}, Count: 1, Route: "rule"}
	delta := testState{Messages: []string{"b", "c"}, Count: 5}

	merged := schema.Merge(state, delta)
	assert.Equal(t, []string{"a", "b", "c"}, merged.Messages)
	assert.Equal(t, 5, merged.Count)
	assert.Equal(t, "rule", merged.Route, "zero delta fields leave state untouched")

	// inputs are not aliased
	assert.Equal(t, []string{"a"}, state.Messages)
	merged.Messages[0] = "changed"
	assert.Equal(t, "a", state.Messages[0])
}

func TestStructSchema_ZeroDeltaKeepsValue(t *testing.T) {
	t.Parallel()

	schema, err := NewStructSchema[testState]()
	require.NoError(t, err)

	state := testState{Count: 5, Route: "rule", Tags: map[string]string{"k": "v"}}
	merged := schema.Merge(state, testState{Count: 0, Route: ""})
	assert.Equal(t, 5, merged.Count)
	assert.Equal(t, "rule", merged.Route)
	assert.Equal(t, map[string]string{"k": "v"}, merged.Tags)

	merged = schema.Merge(merged, testState{Count: -1, Route: "none"})
	assert.Equal(t, -1, merged.Count)
	assert.Equal(t, "none", merged.Route)
}

func TestStructSchema_KeysAndPath(t *testing.T) {
	t.Parallel()

	schema, err := NewStructSchema[testState]()
	require.NoError(t, err)

	assert.Equal(t, []string{"messages", "route"}, schema.Keys(testState{Messages: []string{"x"}, Route: "r"}))
	assert.Empty(t, schema.Keys(testState{}))
	assert.Equal(t, "processing_path", schema.PathKey())
	assert.True(t, schema.HasKey("tags"))
	assert.False(t, schema.HasKey("internal"))

	s := schema.RecordVisit(testState{}, "first")
	s = schema.RecordVisit(s, "second")
	assert.Equal(t, []string{"first", "second"}, schema.Path(s))
}

func TestStructSchema_CloneCopiesMaps(t *testing.T) {
	t.Parallel()

	schema, err := NewStructSchema[testState]()
	require.NoError(t, err)

	orig := testState{Tags: map[string]string{"k": "v"}}
	c := schema.Clone(orig)
	c.Tags["k"] = "changed"
	assert.Equal(t, "v", orig.Tags["k"])
}

func TestNewStructSchema_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewStructSchema[int]()
	assert.Error(t, err)

	type badAppend struct {
		N int `graph:"append"`
	}
	_, err = NewStructSchema[badAppend]()
	assert.Error(t, err)

	type badPath struct {
		P []int `graph:"path"`
	}
	_, err = NewStructSchema[badPath]()
	assert.Error(t, err)

	type unknownTag struct {
		S string `graph:"sum"`
	}
	_, err = NewStructSchema[unknownTag]()
	assert.Error(t, err)

	type duplicateKey struct {
		A string `json:"x"`
		B string `json:"x"`
	}
	_, err = NewStructSchema[duplicateKey]()
	assert.Error(t, err)
}
