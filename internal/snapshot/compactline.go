package snapshot

import (
	"fmt"
	"strings"
)

var stateOrder = []string{"focused", "checked", "selected", "expanded", "disabled", "required"}

// CompactLine renders the sole user-visible serialization of an element:
// `@eN role "name" [state, …] value:"…"`.
// State tokens are included only when properties[k] == "true" for
// k in stateOrder; value:"…" is included only when properties["value"]
// exists and differs from name.
func CompactLine(ref, role, name string, properties map[string]string) string {
	var b strings.Builder
	b.WriteString(ref)
	b.WriteByte(' ')
	b.WriteString(role)
	if name != "" {
		fmt.Fprintf(&b, " %q", name)
	}

	var states []string
	for _, k := range stateOrder {
		if properties[k] == "true" {
			states = append(states, k)
		}
	}
	if len(states) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(states, ", "))
		b.WriteString("]")
	}

	if v, ok := properties["value"]; ok && v != name {
		fmt.Fprintf(&b, " value:%q", v)
	}

	return b.String()
}
