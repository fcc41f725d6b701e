package deps

import "strings"

// Status reports whether an external binary can be executed.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Unavailable returns the required binaries that could not be resolved.
func Unavailable(statuses []Status) []Status {
	var missing []Status
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			missing = append(missing, st)
		}
	}
	return missing
}

// Describe joins the names and details of statuses for error messages.
func Describe(statuses []Status) string {
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		part := st.Name
		if detail := strings.TrimSpace(st.Detail); detail != "" {
			part += " (" + detail + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}
