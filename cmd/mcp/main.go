// Cordon MCP Server - Exposes gateway analyst tooling as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/cordonlabs/cordon/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:       envOrDefault("CORDON_API_URL", "http://localhost:8080"),
		OracleSecret: os.Getenv("CORDON_ORACLE_SECRET"),
		AdminSecret:  os.Getenv("CORDON_ADMIN_SECRET"),
	}

	if cfg.OracleSecret == "" {
		fmt.Fprintln(os.Stderr, "CORDON_ORACLE_SECRET is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
