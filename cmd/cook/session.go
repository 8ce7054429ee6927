package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstraus/tuicommander/internal/config"
	"github.com/sstraus/tuicommander/internal/ptyengine"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage PTY sessions on a running cook server",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionAttachCmd())
	cmd.AddCommand(newSessionWriteCmd())
	cmd.AddCommand(newSessionResizeCmd())
	cmd.AddCommand(newSessionCloseCmd())

	return cmd
}

func sessionsAPIURL(cfg *config.Config, suffix string) string {
	return fmt.Sprintf("%s/api/v1/sessions%s", cfg.Client.ServerURL, suffix)
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active PTY sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			resp, err := http.Get(sessionsAPIURL(cfg, "/"))
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			var summaries []ptyengine.SessionSummary
			if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			if len(summaries) == 0 {
				fmt.Println("No active sessions.")
				return nil
			}

			for _, s := range summaries {
				state := "running"
				if s.Paused {
					state = "paused"
				}
				if s.ExitStatus != nil {
					state = "exited"
				}
				fg := s.ForegroundProc
				if fg == "" {
					fg = "-"
				}
				fmt.Printf("%s  pid=%d  %dx%d  %s  fg=%s  %s\n", s.ID, s.PID, s.Rows, s.Cols, state, fg, s.Cwd)
			}

			return nil
		},
	}
}

func newSessionAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <session-id>",
		Short: "Print a session's current output snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			resp, err := http.Get(sessionsAPIURL(cfg, "/"+args[0]))
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned status %d: %s", resp.StatusCode, body)
			}

			var out struct {
				Seq        uint64 `json:"seq"`
				Foreground string `json:"foreground"`
				B64        string `json:"b64"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			data, err := base64.StdEncoding.DecodeString(out.B64)
			if err != nil {
				return fmt.Errorf("server returned invalid base64: %w", err)
			}

			os.Stdout.Write(data)
			return nil
		},
	}
}

func newSessionWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <session-id> <text>",
		Short: "Write text to a session's stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			body, _ := json.Marshal(map[string]string{
				"b64": base64.StdEncoding.EncodeToString([]byte(args[1])),
			})
			resp, err := http.Post(sessionsAPIURL(cfg, "/"+args[0]+"/write"), "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				respBody, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned status %d: %s", resp.StatusCode, respBody)
			}

			return nil
		},
	}
}

func newSessionResizeCmd() *cobra.Command {
	var rows, cols uint16

	cmd := &cobra.Command{
		Use:   "resize <session-id>",
		Short: "Resize a session's PTY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			body, _ := json.Marshal(map[string]uint16{"rows": rows, "cols": cols})
			resp, err := http.Post(sessionsAPIURL(cfg, "/"+args[0]+"/resize"), "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				respBody, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned status %d: %s", resp.StatusCode, respBody)
			}

			return nil
		},
	}

	cmd.Flags().Uint16Var(&rows, "rows", 24, "Terminal rows")
	cmd.Flags().Uint16Var(&cols, "cols", 80, "Terminal columns")

	return cmd
}

func newSessionCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			req, err := http.NewRequest(http.MethodDelete, sessionsAPIURL(cfg, "/"+args[0]), nil)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				respBody, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned status %d: %s", resp.StatusCode, respBody)
			}

			fmt.Printf("Closed session %s\n", args[0])
			return nil
		},
	}
}
