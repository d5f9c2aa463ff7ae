// Package config loads, normalizes, and validates kmsgrab configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KMSGRAB_DEVICE. The Config type centralizes every knob the CLI needs,
// allowing the DRM device scan, state directory, and capture history to be
// configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
