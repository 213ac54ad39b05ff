// Package config loads sheetqueue settings from an optional YAML or JSON file,
// applies SHEETQUEUE_* environment overrides, and fills defaults. Relative
// paths in the file are resolved against the file's directory.
package config
