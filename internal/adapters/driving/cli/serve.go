package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/adapters/driving/api"
	"github.com/custodia-labs/docqa/internal/adapters/driving/mcp"
	"github.com/custodia-labs/docqa/internal/logger"
)

// apiKeyEnv is read when --api-key is not given.
const apiKeyEnv = "DOCQA_API_KEY"

var (
	serveMCP    bool
	servePort   int
	serveHTTP   string
	serveAPIKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve retrieval and answers to other programs",
	Long: `Exposes docqa to other programs, either as a Model Context Protocol
server for AI assistants or as an HTTP API.

MCP (--mcp) communicates over stdio by default. Add --port to serve MCP
over HTTP instead, for example to use the MCP Inspector.

The HTTP API (--http) offers retrieval and conversational sessions whose
answers stream as server-sent events. Set --api-key or ` + apiKeyEnv + `
to require a bearer token.

Examples:
  # Stdio MCP (for Claude Desktop and similar)
  docqa serve --mcp

  # MCP over HTTP
  docqa serve --mcp --port 8080

  # HTTP API
  docqa serve --http :8081

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "docqa": {
        "command": "/path/to/docqa",
        "args": ["serve", "--mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "serve the Model Context Protocol")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "MCP HTTP port (0 = use stdio)")
	serveCmd.Flags().StringVar(&serveHTTP, "http", "", "serve the HTTP API on this address, e.g. :8081")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "bearer token required by the HTTP API")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	switch {
	case serveMCP && serveHTTP != "":
		return errors.New("choose one of --mcp or --http")
	case serveMCP:
		return runMCPServe(cmd)
	case serveHTTP != "":
		return runHTTPServe(cmd)
	default:
		return errors.New("nothing to serve: pass --mcp or --http")
	}
}

func runMCPServe(cmd *cobra.Command) error {
	ports := &mcp.Ports{
		Retrieval: retrievalService,
		Answers:   answerService,
	}
	if stagedDocuments != nil {
		ports.Staged = stagedDocuments
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if servePort > 0 {
		addr := fmt.Sprintf(":%d", servePort)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}

func runHTTPServe(cmd *cobra.Command) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	apiKey := serveAPIKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		logger.Warn("HTTP API has no API key; every client is trusted")
	}

	server := api.NewServer(retrievalService, sessionService, logger.Logger(), api.Config{APIKey: apiKey})
	fmt.Fprintf(cmd.OutOrStdout(), "HTTP API listening on %s\n", serveHTTP)
	return server.ListenAndServe(cmd.Context(), serveHTTP)
}
