package mailbox

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Format renders notifications as a plain-text block for assistants,
// grouped by type in order of first appearance. It returns an empty string
// for no notifications.
func Format(notifications []Notification) string {
	if len(notifications) == 0 {
		return ""
	}

	groups := make(map[string][]Notification)
	var typeOrder []string
	for _, n := range notifications {
		if _, exists := groups[n.Type]; !exists {
			typeOrder = append(typeOrder, n.Type)
		}
		groups[n.Type] = append(groups[n.Type], n)
	}

	var b strings.Builder
	b.WriteString("<session-notifications>\n")
	for i, t := range typeOrder {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", strings.ToUpper(t))
		for _, n := range groups[t] {
			from := n.From
			if from == "" {
				from = "gateway"
			}
			fmt.Fprintf(&b, "  %s (%s) from %s\n", n.ID, n.Severity, from)
			fmt.Fprintf(&b, "  %s\n", n.Message)
			if len(n.Data) > 0 {
				fmt.Fprintf(&b, "  Data: %s\n", formatData(n.Data))
			}
			if n.RequiresAcknowledgment {
				b.WriteString("  Acknowledgment required\n")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("</session-notifications>")
	return b.String()
}

// FilterOptions controls which notifications Filter keeps.
type FilterOptions struct {
	Types    []string  // Only these types, glob patterns allowed (empty = all)
	Since    time.Time // Only notifications after this time (zero = all)
	From     string    // Only this sender (empty = all)
	MaxItems int       // Keep the most recent N (0 = unlimited)
}

// Filter applies opts in order: type, since, sender, then count.
func Filter(notifications []Notification, opts FilterOptions) []Notification {
	matchers := compileTypes(opts.Types)
	var result []Notification
	for _, n := range notifications {
		if len(matchers) > 0 && !matchesAny(matchers, n.Type) {
			continue
		}
		if !opts.Since.IsZero() && !n.Timestamp.After(opts.Since) {
			continue
		}
		if opts.From != "" && n.From != opts.From {
			continue
		}
		result = append(result, n)
	}
	if opts.MaxItems > 0 && len(result) > opts.MaxItems {
		result = result[len(result)-opts.MaxItems:]
	}
	return result
}

// compileTypes turns type filters into matchers. A pattern that does not
// compile matches its literal text only.
func compileTypes(patterns []string) []glob.Glob {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			g, _ = glob.Compile(glob.QuoteMeta(p))
		}
		matchers = append(matchers, g)
	}
	return matchers
}

func matchesAny(matchers []glob.Glob, s string) bool {
	return slices.ContainsFunc(matchers, func(g glob.Glob) bool { return g.Match(s) })
}

// formatData renders a data map as sorted key=value pairs.
func formatData(m map[string]any) string {
	keys := slices.Sorted(maps.Keys(m))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
