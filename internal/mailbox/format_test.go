package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Empty(t, Format(nil))

	out := Format([]Notification{
		{ID: "n1", Type: "deploy", Message: "starting", Severity: SeverityWarning, From: "s1", Data: map[string]any{"env": "prod", "build": 42}},
		{ID: "n2", Type: "review", Message: "please look", Severity: SeverityInfo, RequiresAcknowledgment: true},
		{ID: "n3", Type: "deploy", Message: "done", Severity: SeverityInfo, From: "s1"},
	})

	for _, want := range []string{
		"<session-notifications>",
		"[DEPLOY]",
		"n1 (warning) from s1",
		"Data: build=42, env=prod",
		"n2 (info) from gateway",
		"Acknowledgment required",
		"</session-notifications>",
	} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "[DEPLOY]"), strings.Index(out, "[REVIEW]"), "groups should follow first appearance")
	assert.Equal(t, 1, strings.Count(out, "[DEPLOY]"), "deploy notifications should share one group")
}

func TestFilter(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	all := []Notification{
		{ID: "1", Type: "a", From: "x", Timestamp: base},
		{ID: "2", Type: "b", From: "y", Timestamp: base.Add(time.Minute)},
		{ID: "3", Type: "a", From: "y", Timestamp: base.Add(2 * time.Minute)},
	}

	tests := []struct {
		name string
		opts FilterOptions
		want string
	}{
		{"no filter", FilterOptions{}, "1,2,3"},
		{"by type", FilterOptions{Types: []string{"a"}}, "1,3"},
		{"type glob", FilterOptions{Types: []string{"?"}}, "1,2,3"},
		{"type glob no match", FilterOptions{Types: []string{"a*z"}}, ""},
		{"since", FilterOptions{Since: base}, "2,3"},
		{"from", FilterOptions{From: "y"}, "2,3"},
		{"max keeps newest", FilterOptions{MaxItems: 1}, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, n := range Filter(all, tt.opts) {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, strings.Join(ids, ","))
		})
	}
}
