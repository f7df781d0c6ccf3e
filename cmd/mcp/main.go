// Admincore MCP Server - Exposes the dispute console as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/crossmarket/admincore/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:    envOrDefault("ADMINCORE_API_URL", "http://localhost:8080"),
		AdminID:   os.Getenv("ADMINCORE_ADMIN_ID"),
		AdminName: os.Getenv("ADMINCORE_ADMIN_NAME"),
	}

	if cfg.AdminID == "" {
		fmt.Fprintln(os.Stderr, "ADMINCORE_ADMIN_ID is required")
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
