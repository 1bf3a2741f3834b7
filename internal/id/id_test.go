package id

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestUUID(t *testing.T) {
	a, b := UUID(), UUID()
	assert.Regexp(t, uuidPattern, a)
	assert.NotEqual(t, a, b)
}

func TestSortable_Ordered(t *testing.T) {
	prev := Sortable()
	for i := 0; i < 100; i++ {
		next := Sortable()
		require.Regexp(t, uuidPattern, next)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestSession(t *testing.T) {
	s := Session()
	assert.Len(t, s, 16)
	assert.True(t, IsValidSession(s))
}

func TestIsValidSession(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"abc123", true},
		{"my-session_1", true},
		{"", false},
		{"has/slash", false},
		{"has space", false},
		{string(make([]byte, 65)), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidSession(tt.in))
		})
	}
}

func TestSequence_Concurrent(t *testing.T) {
	seq := &Sequence{Prefix: "c"}
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := seq.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	assert.Equal(t, "c51", seq.Next())
}
