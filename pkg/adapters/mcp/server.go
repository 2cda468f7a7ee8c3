package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/hotswap"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const instancesURI = "hotswap://instances"

// InstancesResponse is the structured output of list_instances.
type InstancesResponse struct {
	Instances []domain.InstanceView `json:"instances" jsonschema_description:"Instance table of the running tree"`
	Live      int                   `json:"live" jsonschema_description:"Number of live instances"`
	Failed    int                   `json:"failed" jsonschema_description:"Number of placeholders"`
}

// Server wraps a coordinator and exposes it as an MCP Server, so an agent
// editing code can push updates and inspect the running tree.
type Server struct {
	coordinator ports.Coordinator
	mcpServer   *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(c ports.Coordinator) *Server {
	s := &Server{
		coordinator: c,
		mcpServer:   server.NewMCPServer("hotswap-mcp", strings.TrimSpace(hotswap.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: push_update
	pushTool := mcp.NewTool("push_update",
		mcp.WithDescription("Hand an update packet (changed modules) to the coordinator."),
		mcp.WithString("packet", mcp.Required(), mcp.Description(`JSON update packet, e.g. {"modules":[{"moduleId":"src/App.svelte","version":2,"acceptsSelf":true}]}`)),
	)
	s.mcpServer.AddTool(pushTool, s.handlePushUpdate)

	// TOOL: list_instances
	listTool := mcp.NewTool("list_instances",
		mcp.WithDescription("List the instance table: live instances and placeholders with their failure."),
		mcp.WithString("module_id", mcp.Description("Only list instances of this module (optional)")),
		mcp.WithOutputSchema[InstancesResponse](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleListInstances))

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the tracked module graph."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(s.coordinator.Graph())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handlePushUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, _ := request.GetArguments()["packet"].(string)

	var packet domain.UpdatePacket
	if err := json.Unmarshal([]byte(raw), &packet); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid packet: %v", err)), nil
	}
	if err := s.coordinator.Enqueue(context.WithoutCancel(ctx), packet); err != nil {
		slog.Warn("MCP push_update: packet rejected", "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("enqueued %s", strings.Join(packet.ModuleIDs(), ", "))), nil
}

func (s *Server) handleListInstances(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (InstancesResponse, error) {
	moduleID, _ := args["module_id"].(string)

	resp := InstancesResponse{Instances: []domain.InstanceView{}}
	for _, v := range s.coordinator.Instances() {
		if moduleID != "" && v.ModuleID != moduleID {
			continue
		}
		resp.Instances = append(resp.Instances, v)
		if v.Status == domain.StatusPlaceholder {
			resp.Failed++
		} else {
			resp.Live++
		}
	}
	return resp, nil
}

func (s *Server) registerResources() {
	// EXPOSE: hotswap://instances
	s.mcpServer.AddResource(mcp.NewResource(instancesURI, "Instance Table",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.coordinator.Instances())
		if err != nil {
			return nil, fmt.Errorf("failed to encode instances: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      instancesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
