package git

import (
	"strings"

	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
)

// ClassifyGitError translates go-git errors into ClassifiedErrors. Transient network
// failures are marked retryable.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())
	var builder *errors.ErrorBuilder
	switch {
	case strings.Contains(l, "authentication required") || strings.Contains(l, "authentication failed") || strings.Contains(l, "not authorized"):
		builder = errors.GitError("authentication required").Fatal()
	case strings.Contains(l, "repository not found") || strings.Contains(l, "object not found") || strings.Contains(l, "reference not found"):
		builder = errors.NewError(errors.CategoryNotFound, "git object not found")
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") || strings.Contains(l, "timeout") || strings.Contains(l, "no route to host") || strings.Contains(l, "connection refused"):
		builder = errors.NetworkError("git transport failed").Retryable()
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		builder = errors.NetworkError("git remote rate limited").Retryable()
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		builder = errors.ConfigError("unsupported git protocol")
	default:
		builder = errors.GitError("git operation failed")
	}

	return builder.
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url).
		Build()
}
