// Package main is the entry point for the jira-rag application.
package main

import (
	"fmt"
	"os"

	"github.com/biscrum/jira-rag/cmd"
	"github.com/biscrum/jira-rag/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
