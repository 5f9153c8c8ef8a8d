package forum

import "fmt"

// Shared state keys written by a Host.
const (
	KeyTopic      = "forum.topic"
	KeyConclusion = "forum.conclusion"
)

// RoundKey is where a worker's statement for round n is stored.
func RoundKey(n int, worker string) string {
	return fmt.Sprintf("forum.round.%d.%s", n, worker)
}

// GuidanceKey is where the host guidance issued after round n is stored.
func GuidanceKey(n int) string {
	return fmt.Sprintf("forum.guidance.%d", n)
}
