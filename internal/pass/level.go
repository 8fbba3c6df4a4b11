package pass

import "fmt"

// Level is the single externally visible configuration surface
// (spec.md §6): it selects which fixed pipeline runs. Modeled as a
// small int-backed enum with a String method, in the style of the teacher's
// `internal/builtins.BuiltinType` (internal/builtins/types.go).
type Level int

const (
	O0 Level = iota
	O1
)

func (l Level) String() string {
	switch l {
	case O0:
		return "O0"
	case O1:
		return "O1"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel accepts "O0"/"O1", their lowercase forms "o0"/"o1", and
// the bare digits "0"/"1", returning an error for anything else.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "O0", "o0", "0":
		return O0, nil
	case "O1", "o1", "1":
		return O1, nil
	default:
		return O0, fmt.Errorf("unknown optimization level %q (want O0 or O1)", s)
	}
}
