package graphql

import (
	"fmt"
	"strings"
)

// Error carries the errors[] of a GraphQL response as one flat message.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return "graphql: unknown error"
	}
	return "graphql: " + strings.Join(e.Messages, "; ")
}

func newError(entries []ErrorEntry) *Error {
	e := &Error{}
	for _, entry := range entries {
		e.Messages = append(e.Messages, entry.Message)
	}
	return e
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql: http status %d: %s", e.StatusCode, e.Body)
}
