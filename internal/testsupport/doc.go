// Package testsupport holds shared fixtures for package tests: temp-dir
// backed configs, stub binaries, sized input files, and session stores.
package testsupport
