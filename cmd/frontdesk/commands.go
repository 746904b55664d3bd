package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/frontdesk/internal/api"
	"github.com/kalambet/frontdesk/internal/config"
	"github.com/kalambet/frontdesk/internal/ledger"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question as a caller would",
	Long: `Ask a question as a caller would.

Examples:
  frontdesk ask "What are your hours?"
  frontdesk ask --caller caller-42 "Do you offer refunds?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, _ := cmd.Flags().GetString("caller")
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/call", api.CallRequest{CallerID: caller, Question: question})
		if err != nil {
			return err
		}

		var result api.CallResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.ResponseText)
		if result.Escalated {
			printWarning("Escalated to a supervisor as %s", result.RequestID)
		}
		if result.AudioFile != "" {
			printStatus("Audio", "%s%s", client.baseURL, result.AudioFile)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("caller", "", "caller id (generated by the server when empty)")
}

// --- requests ---

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Review escalated requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests, pending by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if limit > 0 {
			q.Set("limit", fmt.Sprint(limit))
		}
		path := "/requests"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var reqs []ledger.Request
		if err := decodeJSON(resp, &reqs); err != nil {
			return err
		}

		if len(reqs) == 0 {
			printStep("No requests")
			return nil
		}

		out := cmd.OutOrStdout()
		for _, r := range reqs {
			fmt.Fprintf(out, "%-8s %-10s %s  %s\n", r.ID, statusLabel(string(r.Status)), r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Question)
			if r.Answer != nil {
				fmt.Fprintf(out, "         ↳ %s\n", *r.Answer)
			}
		}
		return nil
	},
}

var requestsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one request as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/requests/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var req ledger.Request
		if err := decodeJSON(resp, &req); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(req)
	},
}

var requestsResolveCmd = &cobra.Command{
	Use:   "resolve <id> <answer>",
	Short: "Answer a pending request; the answer is learned",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		answer := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/requests/"+url.PathEscape(id)+"/resolve", api.ResolveRequest{Answer: answer})
		if err != nil {
			return err
		}

		var result api.ResolveResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Resolved %s: %q → %q", result.ID, result.Question, result.Answer)
		return nil
	},
}

func init() {
	requestsListCmd.Flags().String("status", "", "pending, resolved, unresolved or all")
	requestsListCmd.Flags().Int("limit", 0, "maximum number of requests to list")
	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsShowCmd)
	requestsCmd.AddCommand(requestsResolveCmd)
}

// --- learned ---

var learnedCmd = &cobra.Command{
	Use:   "learned",
	Short: "List learned answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/learned")
		if err != nil {
			return err
		}

		var learned map[string]string
		if err := decodeJSON(resp, &learned); err != nil {
			return err
		}

		if len(learned) == 0 {
			printStep("Nothing learned yet")
			return nil
		}

		questions := make([]string, 0, len(learned))
		for q := range learned {
			questions = append(questions, q)
		}
		sort.Strings(questions)

		out := cmd.OutOrStdout()
		for _, q := range questions {
			fmt.Fprintf(out, "%s\n  %s\n", labelColor.Sprint(q), learned[q])
		}
		return nil
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all requests and learned answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes every request and learned answer; re-run with --confirm")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/clear", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s", result["message"])
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token <identity> <room>",
	Short: "Issue a LiveKit room token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/livekit/token/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		// The token alone goes to stdout so it can be piped.
		fmt.Fprintln(cmd.OutOrStdout(), result["token"])
		if u := result["url"]; u != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "url: %s\n", u)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", labelColor.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
