package mcpadapter

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

const (
	ServerName    = "fund-facts"
	ServerVersion = "1.0.0"
)

// Server exposes the retrieval core as MCP tools.
type Server struct {
	mcp          *server.MCPServer
	corpus       ports.CorpusService
	defaultLimit int
}

func NewServer(corpus ports.CorpusService, defaultLimit int) *Server {
	s := &Server{
		mcp:          server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		corpus:       corpus,
		defaultLimit: defaultLimit,
	}
	s.mcp.AddTool(retrieveFundFactsTool(), s.handleRetrieveFundFacts)
	s.mcp.AddTool(listSchemesTool(), s.handleListSchemes)
	s.mcp.AddTool(getFundRecordTool(), s.handleGetFundRecord)
	return s
}

// ServeStdio blocks until stdin is closed.
func (s *Server) ServeStdio(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}
