package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/ragchat/internal/http"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		role    string
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a running ragchat server a question",
		Long: `Send a question to POST /ask and print the answer, its sources and the
suggested follow-up questions.

Examples:
  ragchat ask "Làm sao thêm sinh viên mới?"
  ragchat ask --role Admin --server http://localhost:9090 "How are grades stored?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := ask(ctx, root.serverURL, strings.Join(args, " "), role)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printAnswer(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "user role sent as "+httpserver.HeaderUserRole)
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragchat server health",
		Long: `Check GET /health and print each check. Exits non-zero when the server
reports degraded.

Examples:
  ragchat health
  ragchat health --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return health(ctx, cmd.OutOrStdout(), root.serverURL)
		},
	}
}

func ask(ctx context.Context, serverURL, question, role string) (*httpserver.AskResponse, error) {
	body, err := json.Marshal(httpserver.AskRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(serverURL, "/") + "/ask"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(httpserver.HeaderUserRole, role)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}

	var out httpserver.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func health(ctx context.Context, w io.Writer, serverURL string) error {
	url := strings.TrimRight(serverURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	var h httpserver.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("server returned status %d with an unreadable body: %w", resp.StatusCode, err)
	}

	fmt.Fprintf(w, "Server Status: %s\n", h.Status)
	fmt.Fprintf(w, "  aiService:     %s (%s)%s\n", okWord(h.Checks.AIService.Healthy), h.Checks.AIService.Provider, suffix(h.Checks.AIService.Error))
	fmt.Fprintf(w, "  cache:         %s (%d entries, max age %s)%s\n", okWord(h.Checks.Cache.Healthy), h.Checks.Cache.Size, h.Checks.Cache.MaxAge, suffix(h.Checks.Cache.Warning))
	fmt.Fprintf(w, "  configuration: %s (%s)\n", okWord(h.Checks.Configuration.Healthy), h.Checks.Configuration.Message)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is %s", h.Status)
	}
	return nil
}

func serverError(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, err)
	}
	var e httpserver.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error.Code != "" {
		return fmt.Errorf("server returned status %d: %s: %s", resp.StatusCode, e.Error.Code, e.Error.Message)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func printAnswer(w io.Writer, resp *httpserver.AskResponse) {
	fmt.Fprintln(w, resp.Answer)

	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "  - %s (score %.1f)\n", s.FilePath, s.Score)
		}
	}
	if len(resp.FollowUpQuestions) > 0 {
		fmt.Fprintln(w, "\nFollow-up questions:")
		for _, q := range resp.FollowUpQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}

	cached := ""
	if resp.FromCache {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\n[%s %dms%s]\n", resp.RequestID, resp.DurationMs, cached)
}

func okWord(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "FAIL"
}

func suffix(s string) string {
	if s == "" {
		return ""
	}
	return ": " + s
}
