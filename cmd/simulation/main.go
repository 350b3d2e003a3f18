// Command simulation walks through a KY session against a running server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	baseURL    string
	token      string
	workerName string
	siteName   string
	weather    string
)

var (
	aiColor    = color.New(color.FgCyan)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	stateColor = color.New(color.FgHiBlack)
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type sessionState struct {
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Status        string   `json:"status"`
	MissingFields []string `json:"missing_fields"`
}

type turn struct {
	Reply           string `json:"reply"`
	NextAction      string `json:"next_action"`
	Status          string `json:"status"`
	Shortcut        bool   `json:"shortcut"`
	Committed       bool   `json:"committed"`
	HasPendingRetry bool   `json:"has_pending_retry"`
	Failure         *struct {
		Message       string `json:"message"`
		Retriable     bool   `json:"retriable"`
		RetryAfterSec int    `json:"retry_after_sec"`
	} `json:"failure"`
}

var rootCmd = &cobra.Command{
	Use:   "simulation",
	Short: "Run an interactive KY session",
	Long: `Starts a KY session and forwards each line typed on stdin as a turn.

Commands: /retry, /near-miss <note>, /feedback, /state, /quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if token == "" {
			return fmt.Errorf("--token (or KY_TOKEN) is required")
		}
		return run(cmd.InOrStdin())
	},
}

func init() {
	rootCmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:3000/api/ky/v1", "KY API base URL")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("KY_TOKEN"), "worker JWT")
	rootCmd.Flags().StringVar(&workerName, "worker", "山田太郎", "worker name")
	rootCmd.Flags().StringVar(&siteName, "site", "A現場", "site name")
	rootCmd.Flags().StringVar(&weather, "weather", "晴れ", "weather")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(in io.Reader) error {
	var state sessionState
	if err := call("POST", "/sessions", map[string]interface{}{
		"worker_name": workerName,
		"site_name":   siteName,
		"weather":     weather,
	}, &state); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	id := state.Session.ID
	stateColor.Printf("session %s (%s)\n", id, state.Status)
	for _, m := range state.Messages {
		aiColor.Printf("AI: %s\n", m.Content)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil
		case line == "/retry":
			var t turn
			if err := call("POST", "/sessions/"+id+"/retry", nil, &t); err != nil {
				errColor.Println(err)
				continue
			}
			printTurn(t)
		case line == "/feedback":
			var fb map[string]string
			if err := call("POST", "/sessions/"+id+"/feedback", nil, &fb); err != nil {
				errColor.Println(err)
				continue
			}
			aiColor.Printf("praise: %s\ntip: %s\n", fb["praise"], fb["tip"])
		case line == "/state":
			if err := call("GET", "/sessions/"+id, nil, &state); err != nil {
				errColor.Println(err)
				continue
			}
			stateColor.Printf("status=%s missing=%v\n", state.Status, state.MissingFields)
		case strings.HasPrefix(line, "/near-miss"):
			note := strings.TrimSpace(strings.TrimPrefix(line, "/near-miss"))
			if err := call("PUT", "/sessions/"+id+"/near-miss", map[string]interface{}{"reported": true, "note": note}, nil); err != nil {
				errColor.Println(err)
				continue
			}
			stateColor.Println("near miss recorded")
		default:
			start := time.Now()
			var t turn
			if err := call("POST", "/sessions/"+id+"/turns", map[string]string{"text": line}, &t); err != nil {
				errColor.Println(err)
				continue
			}
			stateColor.Printf("(%v) ", time.Since(start).Round(time.Millisecond))
			printTurn(t)
			if t.Status == "completed" {
				stateColor.Println("session completed; /feedback for a review")
			}
		}
	}
}

func printTurn(t turn) {
	aiColor.Printf("AI: %s\n", t.Reply)
	meta := fmt.Sprintf("status=%s next=%s", t.Status, t.NextAction)
	if t.Shortcut {
		meta += " shortcut"
	}
	if t.Committed {
		meta += " committed"
	}
	stateColor.Println(meta)
	if t.Failure != nil && t.HasPendingRetry {
		msg := "type /retry to resend"
		if t.Failure.RetryAfterSec > 0 {
			msg = fmt.Sprintf("wait %ds, then /retry", t.Failure.RetryAfterSec)
		}
		warnColor.Println(msg)
	}
}

func call(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 300 || !env.Success {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
