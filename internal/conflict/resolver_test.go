package conflict

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeResolver(t *testing.T) {
	tests := []struct {
		name      string
		strategy  Strategy
		current   string
		candidate string
		want      string
		wantOK    bool
	}{
		{"objects merge", AutoMerge, `{"a":1,"b":1}`, `{"b":2}`, `{"a":1,"b":2}`, true},
		{"scalar candidate wins", AutoMerge, `2`, `3`, `3`, true},
		{"object over scalar", AutoMerge, `2`, `{"a":1}`, `{"a":1}`, true},
		{"manual never resolves", ManualResolve, `1`, `2`, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Conflict{
				Strategy:  tt.strategy,
				Candidate: version("x", tt.candidate, "b", time.Time{}),
			}
			got, ok := MergeResolver{}.Resolve(c, json.RawMessage(tt.current))
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(c Conflict, current json.RawMessage) (json.RawMessage, bool) {
		return current, true
	})
	got, ok := r.Resolve(Conflict{}, json.RawMessage(`7`))
	assert.True(t, ok)
	assert.Equal(t, "7", string(got))
}
