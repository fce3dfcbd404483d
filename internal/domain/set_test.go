package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSet_Membership(t *testing.T) {
	s := NewUserSet("b", "a", "", "a")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has(""))

	assert.True(t, s.Add("c"))
	assert.False(t, s.Add("c"))
	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.Sorted())
}

func TestUserSet_CloneIsIndependent(t *testing.T) {
	s := NewUserSet("a")
	c := s.Clone()
	c.Add("b")
	assert.False(t, s.Has("b"))
}

func TestUserSet_SubsetOf(t *testing.T) {
	rsvps := NewUserSet("a", "b")
	assert.True(t, NewUserSet().SubsetOf(rsvps))
	assert.True(t, NewUserSet("a").SubsetOf(rsvps))
	assert.False(t, NewUserSet("a", "z").SubsetOf(rsvps))
}

func TestUserSet_JSON(t *testing.T) {
	raw, err := json.Marshal(NewUserSet("z", "m", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","m","z"]`, string(raw))

	var s UserSet
	require.NoError(t, json.Unmarshal([]byte(`["x","x","y"]`), &s))
	assert.Equal(t, 2, s.Len())

	raw, err = json.Marshal(NewUserSet())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
