// Package config loads, normalizes, and validates callingest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CALLINGEST_ACCESS_TOKEN. The Config type centralizes every knob the CLI
// needs: workspace and state directories, the storage destination,
// credentials, and the compression and upload tuning values.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
