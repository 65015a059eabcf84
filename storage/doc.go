// Package storage provides pluggable persistence backends for directory
// entries. Backends are dumb key-value stores selected by location URI
// (memory://, file://, s3://); the directory itself owns every invariant.
package storage
