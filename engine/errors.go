package engine

import "fmt"

// ExhaustedError reports that the tool loop hit its turn limit while the
// model was still requesting tools. Answer carries the synthesized summary
// so callers can still show the user something useful.
type ExhaustedError struct {
	Turns  int
	Answer string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("tool loop exhausted after %d turns", e.Turns)
}
