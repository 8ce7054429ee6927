// Package mcpbridge registers the five MCP tools of SPEC_FULL.md §4.7 onto
// an mcp-golang server: session, git, agent, config, plugin_dev_guide. Each
// tool's argument struct carries a required Action field, dispatched by a
// switch, grounded on the pack's RegisterTool/CreateJSONResponse pattern
// (blaxel-ai-sandbox's uvm-api/src/mcp package).
package mcpbridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	mcp_golang "github.com/metoro-io/mcp-golang"

	"github.com/sstraus/tuicommander/internal/agent"
	"github.com/sstraus/tuicommander/internal/commandsurface"
	"github.com/sstraus/tuicommander/internal/config"
	"github.com/sstraus/tuicommander/internal/db"
	"github.com/sstraus/tuicommander/internal/gitquery"
	"github.com/sstraus/tuicommander/internal/ptyengine"
)

// Deps bundles everything the five tools dispatch into.
type Deps struct {
	Surface    *commandsurface.Surface
	AgentStore *agent.Store
	Config     *config.Config
	DB         *db.DB
}

// jsonResponse mirrors the pack's CreateJSONResponse helper: marshal data as
// indented JSON text content.
func jsonResponse(data interface{}) (*mcp_golang.ToolResponse, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(string(b))), nil
}

func missingField(field string) error {
	return fmt.Errorf("missing or invalid required field %q", field)
}

// RegisterAll wires all five tools onto srv.
func RegisterAll(srv *mcp_golang.Server, deps Deps) error {
	if err := registerSessionTool(srv, deps); err != nil {
		return err
	}
	if err := registerGitTool(srv, deps); err != nil {
		return err
	}
	if err := registerAgentTool(srv, deps); err != nil {
		return err
	}
	if err := registerConfigTool(srv, deps); err != nil {
		return err
	}
	if err := registerPluginDevGuideTool(srv); err != nil {
		return err
	}
	return nil
}

// SessionArgs carries every parameter any session action might need;
// unused fields for a given action are simply ignored (mirrors the pack's
// flat per-tool args-struct convention).
type SessionArgs struct {
	Action  string            `json:"action" jsonschema:"required,description=list|snapshot|create|write|resize|pause|resume|close|foreground"`
	ID      string            `json:"id,omitempty" jsonschema:"description=Session id, required for all actions except list/create"`
	Command string            `json:"command,omitempty" jsonschema:"description=Command to spawn, required for create"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Rows    uint16            `json:"rows,omitempty"`
	Cols    uint16            `json:"cols,omitempty"`
	Bytes   int               `json:"bytes,omitempty" jsonschema:"description=Byte count for snapshot, 0 means default"`
	DataB64 string            `json:"data_b64,omitempty" jsonschema:"description=Base64-encoded bytes to write"`
}

func registerSessionTool(srv *mcp_golang.Server, deps Deps) error {
	return srv.RegisterTool("session", "Create, control, and inspect PTY sessions", func(a SessionArgs) (*mcp_golang.ToolResponse, error) {
		switch a.Action {
		case "list":
			return jsonResponse(deps.Surface.List())
		case "create":
			if a.Command == "" {
				return nil, missingField("command")
			}
			rows, cols := a.Rows, a.Cols
			if rows == 0 {
				rows = deps.Config.PtyEngine.DefaultRows
			}
			if cols == 0 {
				cols = deps.Config.PtyEngine.DefaultCols
			}
			id, err := deps.Surface.Create(ptyengine.CreateSpec{
				Command: a.Command, Args: a.Args, Env: a.Env, Cwd: a.Cwd, Rows: rows, Cols: cols,
			})
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]string{"id": id})
		case "write":
			if a.ID == "" {
				return nil, missingField("id")
			}
			data, err := base64.StdEncoding.DecodeString(a.DataB64)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 in data_b64: %w", err)
			}
			n, err := deps.Surface.Write(a.ID, data)
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]int{"written": n})
		case "resize":
			if a.ID == "" {
				return nil, missingField("id")
			}
			if err := deps.Surface.Resize(a.ID, a.Rows, a.Cols); err != nil {
				return nil, err
			}
			return jsonResponse(map[string]bool{"ok": true})
		case "pause":
			if a.ID == "" {
				return nil, missingField("id")
			}
			if err := deps.Surface.Pause(a.ID); err != nil {
				return nil, err
			}
			return jsonResponse(map[string]bool{"ok": true})
		case "resume":
			if a.ID == "" {
				return nil, missingField("id")
			}
			if err := deps.Surface.Resume(a.ID); err != nil {
				return nil, err
			}
			return jsonResponse(map[string]bool{"ok": true})
		case "close":
			if a.ID == "" {
				return nil, missingField("id")
			}
			if err := deps.Surface.Close(a.ID); err != nil {
				return nil, err
			}
			return jsonResponse(map[string]bool{"ok": true})
		case "snapshot":
			if a.ID == "" {
				return nil, missingField("id")
			}
			data, seq, fg, err := deps.Surface.Snapshot(a.ID, a.Bytes)
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]any{"seq": seq, "foreground": fg, "bytes": string(data)})
		case "foreground":
			if a.ID == "" {
				return nil, missingField("id")
			}
			fg, err := deps.Surface.Foreground(a.ID)
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]string{"foreground": fg})
		default:
			return nil, fmt.Errorf("unknown session action %q", a.Action)
		}
	})
}

// GitArgs carries every parameter any git action might need.
type GitArgs struct {
	Action string `json:"action" jsonschema:"required,description=status|branches|recent_commits|diff|file_diff|changed_files"`
	Dir    string `json:"dir" jsonschema:"required,description=Working tree path to query"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Path   string `json:"path,omitempty" jsonschema:"description=Required for file_diff"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Commit count for recent_commits"`
}

func registerGitTool(srv *mcp_golang.Server, deps Deps) error {
	return srv.RegisterTool("git", "Query git status, branches, commits, and diffs", func(a GitArgs) (*mcp_golang.ToolResponse, error) {
		if a.Dir == "" {
			return nil, missingField("dir")
		}
		q := gitquery.New(a.Dir)
		switch a.Action {
		case "status":
			branch, files, err := q.Status()
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]any{"branch": branch, "files": files})
		case "branches":
			branches, err := q.Branches()
			if err != nil {
				return nil, err
			}
			return jsonResponse(branches)
		case "recent_commits":
			commits, err := q.RecentCommits(a.Limit)
			if err != nil {
				return nil, err
			}
			return jsonResponse(commits)
		case "diff":
			diff, err := q.Diff(a.From, a.To)
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]string{"diff": diff})
		case "file_diff":
			if a.Path == "" {
				return nil, missingField("path")
			}
			diff, err := q.FileDiff(a.Path, a.From, a.To)
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]string{"diff": diff})
		case "changed_files":
			files, err := q.ChangedFiles(a.From, a.To)
			if err != nil {
				return nil, err
			}
			return jsonResponse(files)
		default:
			return nil, fmt.Errorf("unknown git action %q", a.Action)
		}
	})
}

// AgentArgs carries every parameter any agent action might need.
type AgentArgs struct {
	Action       string `json:"action" jsonschema:"required,description=list|detect|spawn"`
	Repo         string `json:"repo,omitempty"`
	Branch       string `json:"branch,omitempty"`
	AgentType    string `json:"agent_type,omitempty" jsonschema:"description=claude|codex|opencode, required for spawn"`
	CheckoutPath string `json:"checkout_path,omitempty" jsonschema:"description=Required for spawn"`
	Prompt       string `json:"prompt,omitempty"`
}

func registerAgentTool(srv *mcp_golang.Server, deps Deps) error {
	return srv.RegisterTool("agent", "List, detect, and spawn coding-agent sessions", func(a AgentArgs) (*mcp_golang.ToolResponse, error) {
		switch a.Action {
		case "list":
			if deps.AgentStore == nil {
				return jsonResponse([]agent.Session{})
			}
			sessions, err := deps.AgentStore.List(a.Repo, a.Branch)
			if err != nil {
				return nil, err
			}
			return jsonResponse(sessions)
		case "detect":
			if deps.AgentStore == nil || a.Repo == "" || a.Branch == "" {
				return jsonResponse(map[string]bool{"found": false})
			}
			sess, err := deps.AgentStore.GetByBranch(a.Repo, a.Branch)
			if err != nil {
				return nil, err
			}
			return jsonResponse(map[string]any{"found": sess != nil, "session": sess})
		case "spawn":
			if a.AgentType == "" {
				return nil, missingField("agent_type")
			}
			if a.CheckoutPath == "" {
				return nil, missingField("checkout_path")
			}
			cmd, err := agent.Spawn(agent.AgentType(a.AgentType), a.CheckoutPath, a.Prompt)
			if err != nil {
				return nil, err
			}
			if err := cmd.Start(); err != nil {
				return nil, fmt.Errorf("failed to start agent: %w", err)
			}
			return jsonResponse(map[string]int{"pid": cmd.Process.Pid})
		default:
			return nil, fmt.Errorf("unknown agent action %q", a.Action)
		}
	})
}

// ConfigArgs carries every parameter any config action might need.
type ConfigArgs struct {
	Action string `json:"action" jsonschema:"required,description=get|set|list"`
	Key    string `json:"key,omitempty" jsonschema:"description=Dotted config key, required for get/set"`
	Value  string `json:"value,omitempty" jsonschema:"description=Required for set"`
}

func registerConfigTool(srv *mcp_golang.Server, deps Deps) error {
	return srv.RegisterTool("config", "Read and update server configuration", func(a ConfigArgs) (*mcp_golang.ToolResponse, error) {
		switch a.Action {
		case "list":
			return jsonResponse(deps.Config)
		case "get":
			if a.Key == "" {
				return nil, missingField("key")
			}
			val, ok := lookupConfigKey(deps.Config, a.Key)
			if !ok {
				return nil, fmt.Errorf("unknown config key %q", a.Key)
			}
			return jsonResponse(map[string]any{"key": a.Key, "value": val})
		case "set":
			if a.Key == "" {
				return nil, missingField("key")
			}
			if err := setConfigKey(deps.Config, a.Key, a.Value); err != nil {
				return nil, err
			}
			return jsonResponse(map[string]bool{"ok": true})
		default:
			return nil, fmt.Errorf("unknown config action %q", a.Action)
		}
	})
}

// PluginDevGuideArgs selects which static doc to return.
type PluginDevGuideArgs struct {
	Topic string `json:"topic,omitempty" jsonschema:"description=Doc name, defaults to invoke"`
}

func registerPluginDevGuideTool(srv *mcp_golang.Server) error {
	return srv.RegisterTool("plugin_dev_guide", "Return embedded developer-guide docs for these tools", func(a PluginDevGuideArgs) (*mcp_golang.ToolResponse, error) {
		topic := a.Topic
		if topic == "" {
			topic = "invoke"
		}
		b, err := pluginDocsFS.ReadFile("docs/" + topic + ".md")
		if err != nil {
			return nil, fmt.Errorf("unknown doc topic %q", topic)
		}
		return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(string(b))), nil
	})
}
