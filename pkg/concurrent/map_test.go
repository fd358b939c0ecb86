package concurrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSetGetDelete(t *testing.T) {
	m := NewMap[string, int]()

	m.Set("a", 1)
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestMapValues(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	assert.ElementsMatch(t, []int{1, 2}, m.Values())
}
