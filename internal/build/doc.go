// Package build sequences one incremental build: discovery, change detection,
// compilation, cache commit and link.
//
// The fingerprint cache is committed after the compile barrier and before the
// link decision. A unit whose compile failed has no entry afterwards and is
// rebuilt by the next run; a link failure leaves the cache untouched because
// it is not a property of any single source file.
package build
