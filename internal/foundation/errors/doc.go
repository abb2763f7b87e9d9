// Package errors provides classified error primitives used across extrunner.
//
// A ClassifiedError carries a category, a severity, a retry strategy and free-form
// context. The CLI adapter turns them into exit codes and log records.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategorySandbox, "create container").
//		WithContext("image", image).
//		Build()
//
// These are operational errors. Per-extension build failures (clone, install, package)
// are recorded as data on the change they belong to and never travel as Go errors.
package errors
