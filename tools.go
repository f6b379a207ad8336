//go:build tools
// +build tools

// Package tools pins dependencies that are only reached through build tags,
// test helpers or blank imports, so go mod tidy keeps them in go.mod.
package tools

import (
	// Database migrations from the command line.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	// Temporal test tooling.
	_ "go.temporal.io/sdk/mocks"
	_ "go.temporal.io/sdk/testsuite"

	// Integration tests.
	_ "github.com/testcontainers/testcontainers-go"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"
)
