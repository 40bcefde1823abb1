// Package testutil builds throwaway C/C++ projects for tests and asserts on
// the files a build leaves behind.
package testutil

const (
	testDirPermissions  = 0o750
	testFilePermissions = 0o600
)
