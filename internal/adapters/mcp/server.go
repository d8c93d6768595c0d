// Package mcpadapter exposes retrieval as Model Context Protocol tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
)

const (
	serverName    = "datasheet-rag"
	serverVersion = "1.0.0"
)

type Server struct {
	query    ports.QueryService
	products ports.ProductReader
	logger   *slog.Logger
}

func New(query ports.QueryService, products ports.ProductReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{query: query, products: products, logger: logger}
}

// MCPServer registers every tool on a fresh mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("classify_query",
		mcp.WithDescription("Classify a product question as EXACT_MATCH, ATTRIBUTE_FILTER, SEMANTIC or HYBRID and extract attribute filters."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language product question")),
	), s.classifyQuery)

	srv.AddTool(mcp.NewTool("search_products",
		mcp.WithDescription("Search the product datasheet catalogue. Routes the query to exact, attribute, semantic or hybrid retrieval."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Product number, attribute constraint or free-text question")),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return")),
		mcp.WithNumber("top_k_candidates", mcp.Description("Number of candidates to retrieve before reranking")),
	), s.searchProducts)

	srv.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription("Answer a question about lamps and luminaires from indexed datasheets, with citations."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question in any supported language")),
		mcp.WithNumber("top_k", mcp.Description("Number of sources to ground the answer on")),
	), s.answerQuestion)

	if s.products != nil {
		srv.AddTool(mcp.NewTool("get_product",
			mcp.WithDescription("Fetch one product record by numeric id."),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Product id from a search result")),
		), s.getProduct)
	}

	return srv
}

// ServeStdio blocks serving the tools over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) classifyQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	classification, err := s.query.Classify(ctx, query)
	if err != nil {
		return s.toolError("classify_query", err), nil
	}
	return jsonResult(classification)
}

func (s *Server) searchProducts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := domain.SearchOptions{
		TopKFinal:      max(req.GetInt("top_k", 0), 0),
		TopKCandidates: max(req.GetInt("top_k_candidates", 0), 0),
	}
	resp, err := s.query.Search(ctx, query, opts)
	if err != nil {
		return s.toolError("search_products", err), nil
	}
	return jsonResult(resp)
}

func (s *Server) answerQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.query.Answer(ctx, query, domain.SearchOptions{TopKFinal: max(req.GetInt("top_k", 0), 0)})
	if err != nil {
		return s.toolError("answer_question", err), nil
	}
	return jsonResult(answer)
}

func (s *Server) getProduct(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}
	product, err := s.products.GetProductByID(ctx, int64(id))
	if err != nil {
		return s.toolError("get_product", err), nil
	}
	return jsonResult(product)
}

// toolError reports failures inside the tool result so the client model can
// react; only unexpected kinds are logged.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if !domain.IsKind(err, domain.ErrInvalidInput) &&
		!domain.IsKind(err, domain.ErrProductNotFound) &&
		!domain.IsKind(err, domain.ErrDocumentNotFound) {
		s.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
