// Package llm provides the language-model client used by the fuzzy
// transaction parser.
package llm

import "context"

// Provider answers one system+user prompt pair with the raw model reply.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
