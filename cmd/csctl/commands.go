package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ashureev/codespace/internal/toolcall"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"
)

type options struct {
	server    string
	sessionID string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "csctl",
		Short:         "Run tool calls against a codespace coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("CODESPACE_SERVER", "http://localhost:8080"), "coordinator base URL")
	root.PersistentFlags().StringVarP(&opts.sessionID, "session", "s", "", "codespace id")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(newCallCmd(opts), newWatchCmd(opts))
	return root
}

func newCallCmd(opts *options) *cobra.Command {
	var argsJSON string
	cmd := &cobra.Command{
		Use:       "call <method>",
		Short:     "Execute one tool call and print the response",
		Example:   `  csctl call edit_code -s demo --args '{"startLine":1,"endLine":1,"newContent":"x"}'`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: toolcall.Methods,
		RunE: func(cmd *cobra.Command, args []string) error {
			if argsJSON == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read args from stdin: %w", err)
				}
				argsJSON = string(data)
			}
			req := toolcall.Request{Method: args[0], SessionID: opts.sessionID}
			if strings.TrimSpace(argsJSON) != "" {
				req.Args = json.RawMessage(argsJSON)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			resp, err := callTool(ctx, http.DefaultClient, opts.server, req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.OK && resp.Error != nil {
				return fmt.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "{}", "tool arguments as JSON, or - to read stdin")
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream change notifications for a codespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.sessionID == "" {
				return errors.New("--session is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watch(ctx, opts.server, opts.sessionID, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n notifications (0 streams forever)")
	return cmd
}

func callTool(ctx context.Context, client *http.Client, server string, req toolcall.Request) (*toolcall.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/tools", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", req.Method, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	var resp toolcall.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", httpResp.StatusCode, err)
	}
	return &resp, nil
}

func watch(ctx context.Context, server, sessionID string, count int, out io.Writer) error {
	wsURL, err := liveURL(server, sessionID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer func() { _ = conn.CloseNow() }()

	for seen := 0; count == 0 || seen < count; seen++ {
		var frame json.RawMessage
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("connection closed: %v", status)
			}
			return err
		}
		if _, err := fmt.Fprintln(out, string(frame)); err != nil {
			return err
		}
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func liveURL(server, sessionID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/codespaces/" + url.PathEscape(sessionID)
	return u.String(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
