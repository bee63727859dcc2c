// Package config loads spill settings from a file, the environment and
// defaults, and turns them into spill options.
//
// Precedence, highest first:
//  1. Environment variables (SPILL_*, e.g. SPILL_WRITE_BUFFER_POLICY=lru)
//  2. The configuration file (YAML, TOML or JSON)
//  3. Defaults
//
// Sizes accept plain byte counts or human-readable values such as "64MiB".
package config
