package didact

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"deadline exceeded", context.DeadlineExceeded, ErrTypeTimeout},
		{"wrapped deadline", fmt.Errorf("semantic search failed: %w", context.DeadlineExceeded), ErrTypeTimeout},
		{"timeout string", errors.New("request timeout after 30s"), ErrTypeTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrTypeNetwork},
		{"connection refused", errors.New("dial tcp 127.0.0.1:7687: connection refused"), ErrTypeNetwork},
		{"no such host", errors.New("lookup chroma.internal: no such host"), ErrTypeNetwork},
		{"rate limit", errors.New("api error: rate limit exceeded"), ErrTypeLLM},
		{"embedding failure", errors.New("embedding request returned status 500"), ErrTypeLLM},
		{"ollama failure", errors.New("ollama generate failed with status 502"), ErrTypeLLM},
		{"sqlite failure", errors.New("sql: database is locked"), ErrTypeDatabase},
		{"neo4j failure", errors.New("neo4j session acquisition failed"), ErrTypeDatabase},
		{"cypher failure", errors.New("cypher syntax error near UNWIND"), ErrTypeDatabase},
		{"constraint violation", errors.New("constraint violation on concepts.title"), ErrTypeDatabase},
		{"missing gateway", errors.New("graph gateway is required"), ErrTypeValidation},
		{"empty value", errors.New("chroma URL cannot be empty"), ErrTypeDatabase},
		{"unclassifiable", errors.New("something odd happened"), ErrTypeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyError(tc.err))
		})
	}
}

func TestClassifyError_ChecksTimeoutBeforeNetwork(t *testing.T) {
	// A timed-out dial mentions both; timeout wins because it is the more
	// actionable label.
	err := errors.New("dial tcp 10.0.0.5:7687: i/o timeout")
	assert.Equal(t, ErrTypeTimeout, ClassifyError(err))
}
