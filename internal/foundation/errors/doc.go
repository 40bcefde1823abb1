// Package errors provides the classified error type used across fpmake.
//
// Every failure the build driver can surface maps to one category:
//   - CategoryDiscovery: the source walk failed; nothing was mutated
//   - CategoryFingerprint: a preprocessing run failed; the build stops before compiling
//   - CategoryCompile: one or more compile jobs exited non-zero; linking was skipped
//   - CategoryLink: the link step exited non-zero; the cache was already committed
//
// Example usage:
//
//	err := errors.CompileError("2 compile jobs failed").
//		WithContext("failed", []string{"Violet/Main.cpp"}).
//		Build()
package errors
