package vm

import (
	"fmt"
	"io"
)

// ProfileEntry is one line of a profile report.
type ProfileEntry struct {
	Function     string
	Instructions int32
}

// ProfileReport writes the top functions by instruction count and zeroes
// every counter it visits, so consecutive reports cover disjoint intervals.
func (m *Machine) ProfileReport(w io.Writer, top int) []ProfileEntry {
	var out []ProfileEntry
	for num := 0; ; num++ {
		best, max := -1, int32(0)
		for i := range m.functions {
			if m.functions[i].Profile > max {
				best, max = i, m.functions[i].Profile
			}
		}
		if best < 0 {
			return out
		}
		f := &m.functions[best]
		if num < top {
			entry := ProfileEntry{Function: m.GetString(f.Name), Instructions: f.Profile}
			out = append(out, entry)
			if w != nil {
				fmt.Fprintf(w, "%7d %s\n", entry.Instructions, entry.Function)
			}
		}
		f.Profile = 0
	}
}
