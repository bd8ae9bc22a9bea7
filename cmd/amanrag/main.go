// Package main provides the entry point for the amanrag CLI.
package main

import (
	"os"

	// Registers the cgo "sqlite3" driver for documents.driver: sqlite3.
	_ "github.com/mattn/go-sqlite3"

	"github.com/Aman-CERP/amanrag/cmd/amanrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
