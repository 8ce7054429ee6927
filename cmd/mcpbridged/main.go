// Command mcpbridged exposes the session/git/agent/config tool surface
// (SPEC_FULL.md §4.7) over a stdio MCP transport, so editor agents and other
// MCP clients can drive PTY sessions without speaking HTTP. It runs its own
// in-process session engine; it does not attach to the sessions of a
// separately running cook server.
package main

import (
	"fmt"
	"os"
	"time"

	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/sstraus/tuicommander/internal/agent"
	"github.com/sstraus/tuicommander/internal/commandsurface"
	"github.com/sstraus/tuicommander/internal/config"
	"github.com/sstraus/tuicommander/internal/db"
	"github.com/sstraus/tuicommander/internal/mcpbridge"
	"github.com/sstraus/tuicommander/internal/procinspect"
	"github.com/sstraus/tuicommander/internal/ptyengine"
)

// Exit codes per SPEC_FULL.md §4.7: 0 normal, 2 bad invocation, 64 I/O
// failure.
const (
	exitOK        = 0
	exitBadInvoke = 2
	exitIOFailure = 64
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpbridged: loading config: %v\n", err)
		return exitBadInvoke
	}

	inspector := procinspect.New(time.Duration(cfg.PtyEngine.InspectorPollMs)*time.Millisecond, nil)
	go inspector.Run()
	defer inspector.Stop()

	mgr := ptyengine.NewManager(inspector, nil)
	defer mgr.CloseAll()
	defer mgr.Stop()

	surface := commandsurface.New(mgr)

	var agentStore *agent.Store
	if cfg.Server.DatabaseURL != "" {
		database, err := db.Open(cfg.Server.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcpbridged: opening database: %v\n", err)
			return exitIOFailure
		}
		defer database.Close()
		agentStore = agent.NewStore(database)
	}

	transport := stdio.NewStdioServerTransport()
	srv := mcp_golang.NewServer(transport, mcp_golang.WithName("tuicommander-bridge"))

	deps := mcpbridge.Deps{Surface: surface, AgentStore: agentStore, Config: cfg}
	if err := mcpbridge.RegisterAll(srv, deps); err != nil {
		fmt.Fprintf(os.Stderr, "mcpbridged: registering tools: %v\n", err)
		return exitBadInvoke
	}

	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "mcpbridged: serve: %v\n", err)
		return exitIOFailure
	}

	return exitOK
}
