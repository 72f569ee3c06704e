package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/enquiro/internal/config"
)

// --- chat ---

type chatResponse struct {
	ThreadID string `json:"thread_id"`
	Response struct {
		Message  string `json:"message"`
		FileName string `json:"file_name"`
		FilePath string `json:"file_path"`
	} `json:"response"`
	Role    string `json:"role"`
	Timings struct {
		SetupTime float64 `json:"setup_time"`
		TotalTime float64 `json:"total_time"`
	} `json:"node_timings"`
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the running enquiro server",
	Long: `Send a message to the running enquiro server.

Examples:
  enquiro chat --user alice "What do my documents say about churn?"
  enquiro chat --user alice --thread 7f3a... "And compared to last quarter?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		thread, _ := cmd.Flags().GetString("thread")
		role, _ := cmd.Flags().GetString("role")
		if user == "" {
			return fmt.Errorf("--user is required")
		}

		message := strings.Join(args, " ")
		req := map[string]any{
			"user_id": user,
			"message": message,
		}
		if thread != "" {
			req["thread_id"] = thread
		}
		if role != "" {
			req["role"] = role
		}

		client := newAPIClient()
		resp, err := client.post(cmd.Context(), "/v1/chat", req)
		if err != nil {
			return err
		}

		var result chatResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response.Message)
		printStatus("Thread", "%s", result.ThreadID)
		if result.Response.FilePath != "" {
			printStatus("File", "%s", result.Response.FilePath)
		}
		printStatus("Time", "%.2fs", result.Timings.TotalTime)
		return nil
	},
}

func init() {
	chatCmd.Flags().String("user", "", "user identifier (required)")
	chatCmd.Flags().String("thread", "", "thread identifier; omit to start a new thread")
	chatCmd.Flags().String("role", "", "role override for this user")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a document into the knowledge base",
	Long: `Ingest a document into the knowledge base.

Examples:
  enquiro ingest --text "Q3 churn was 4.2%, down from 5.1%" --title "Q3 notes"
  enquiro ingest --file ./report.pdf
  enquiro ingest --file ./notes.md --title "Meeting notes"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		req := map[string]any{"source": "cli"}
		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if strings.EqualFold(filepath.Ext(file), ".pdf") {
				req["type"] = "pdf"
				req["content"] = base64.StdEncoding.EncodeToString(data)
			} else {
				req["type"] = "text"
				req["content"] = string(data)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			}
		}
		if title != "" {
			req["title"] = title
		}

		client := newAPIClient()
		resp, err := client.post(cmd.Context(), "/v1/ingest", req)
		if err != nil {
			return err
		}

		var result struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Chunks int    `json:"chunks"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Ingested %q as %s (%d chunks)", result.Title, result.ID, result.Chunks)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (PDF or plain text)")
	ingestCmd.Flags().String("title", "", "title for the document")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect personalization profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user_id>",
	Short: "Show a user's profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		resp, err := client.get(cmd.Context(), "/v1/profile/"+args[0])
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List ingested documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client := newAPIClient()
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var docs []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Source    string `json:"source"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			title := d.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, d.ID[:8]), d.CreatedAt, title)
		}
		return nil
	},
}

func init() {
	documentsListCmd.Flags().Int("limit", 20, "maximum number of documents to list")
	documentsCmd.AddCommand(documentsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadClient()

		for _, kv := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, kv.Key), kv.Value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
