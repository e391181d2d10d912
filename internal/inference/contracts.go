package inference

import "context"

// Client is the boundary abstraction for the external inference
// collaborator: prompt plus optional image reference in, raw text out.
// Failures are transient and per-request; the pipeline treats every failure
// as non-fatal for the enclosing job. The collaborator owns its own
// retry/backoff policy.
type Client interface {
	Infer(ctx context.Context, prompt, imagePath string) (string, error)
}
