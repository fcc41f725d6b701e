// Package preflight provides readiness checks for the filesystem paths,
// credentials, storage endpoint and binaries that callingest depends on.
//
// The CLI "callingest status" command renders every check; "callingest ingest"
// runs RunAll first and refuses to start when a check fails, so a doomed
// transfer is caught before any bytes are transcoded.
package preflight
