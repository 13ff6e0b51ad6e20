package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pathlight/pathlight/internal/config"
	"github.com/pathlight/pathlight/internal/keywords"
	"github.com/pathlight/pathlight/internal/pathdiff"
	"github.com/pathlight/pathlight/internal/pathstate"
)

// decodeFile reads a JSON or YAML document into v. YAML is converted
// through JSON so the struct json tags apply to both formats.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return err
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func loadStateFile(path string) (pathstate.PathState, error) {
	var st pathstate.PathState
	if err := decodeFile(path, &st); err != nil {
		return pathstate.PathState{}, err
	}
	st.Normalize()
	return st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- path ---

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Manage learning paths",
}

var pathListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learning paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/paths?limit=%d", limit))
		if err != nil {
			return err
		}

		if asJSON {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(os.Stdout, raw)
		}

		var records []struct {
			ID    string `json:"id"`
			State struct {
				Title  string `json:"title"`
				Status string `json:"status"`
			} `json:"state"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No paths found.")
			return nil
		}

		for _, r := range records {
			fmt.Printf("%s  %-9s  %s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				r.State.Status,
				truncate(r.State.Title, 60),
				r.UpdatedAt,
			)
		}
		return nil
	},
}

var pathShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a path as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/paths/"+args[0])
		if err != nil {
			return err
		}

		var record any
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}
		return printJSON(os.Stdout, record)
	},
}

var pathCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a path from a state file",
	Long: `Create a path from a JSON or YAML state file.

Examples:
  pathlight path create -f path.json
  pathlight path create -f path.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		state, err := loadStateFile(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/paths", state)
		if err != nil {
			return err
		}

		var record struct {
			ID    string `json:"id"`
			State struct {
				Title string `json:"title"`
			} `json:"state"`
		}
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}

		printSuccess("Created path %s: %s", record.ID, record.State.Title)
		return nil
	},
}

var pathUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace a path's state, recording a revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		state, err := loadStateFile(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/v1/paths/"+args[0], state)
		if err != nil {
			return err
		}

		var result struct {
			Summary    []string `json:"summary"`
			HasChanges bool     `json:"has_changes"`
			RevisionID int64    `json:"revision_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, line := range result.Summary {
			fmt.Println(line)
		}
		if result.HasChanges {
			printSuccess("Recorded revision %d", result.RevisionID)
		}
		return nil
	},
}

var pathPreviewCmd = &cobra.Command{
	Use:   "preview <id>",
	Short: "Show what an update would change, without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		state, err := loadStateFile(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/paths/"+args[0]+"/preview", state)
		if err != nil {
			return err
		}

		var result struct {
			Summary []string `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, line := range result.Summary {
			fmt.Println(line)
		}
		return nil
	},
}

var pathDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a path and its revisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/paths/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted path %s", args[0])
		return nil
	},
}

var pathRevisionsCmd = &cobra.Command{
	Use:   "revisions <id>",
	Short: "Show a path's change history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/paths/%s/revisions?limit=%d", args[0], limit))
		if err != nil {
			return err
		}

		var revisions []struct {
			ID        int64  `json:"id"`
			Summary   string `json:"summary"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &revisions); err != nil {
			return err
		}

		if len(revisions) == 0 {
			fmt.Println("No revisions found.")
			return nil
		}

		for _, rev := range revisions {
			fmt.Printf("%s  %s\n", colorize(colorBold, fmt.Sprintf("#%d", rev.ID)), rev.CreatedAt)
			for _, line := range strings.Split(rev.Summary, "\n") {
				fmt.Printf("  %s\n", line)
			}
		}
		return nil
	},
}

var pathGenerateCmd = &cobra.Command{
	Use:   "generate <goal>",
	Short: "Generate a path for a career goal with the local model",
	Long: `Generate a learning path for a career goal using the local model.

Examples:
  pathlight path generate "become a site reliability engineer"
  pathlight path generate transition from QA to backend development`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating path for %q...", goal)
		resp, err := client.post(cmd.Context(), "/v1/paths/generate", map[string]string{"goal": goal})
		if err != nil {
			return err
		}

		var record struct {
			ID    string `json:"id"`
			State struct {
				Title string `json:"title"`
				Nodes []struct {
					Title string `json:"title"`
				} `json:"nodes"`
			} `json:"state"`
		}
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}

		printSuccess("Created path %s: %s (%d steps)", record.ID, record.State.Title, len(record.State.Nodes))
		for i, n := range record.State.Nodes {
			fmt.Printf("  %2d. %s\n", i+1, n.Title)
		}
		return nil
	},
}

func init() {
	pathListCmd.Flags().Int("limit", 50, "maximum number of paths to list")
	pathListCmd.Flags().Bool("json", false, "print raw JSON")
	pathCreateCmd.Flags().StringP("file", "f", "", "state file (JSON or YAML)")
	pathUpdateCmd.Flags().StringP("file", "f", "", "state file (JSON or YAML)")
	pathPreviewCmd.Flags().StringP("file", "f", "", "state file (JSON or YAML)")
	pathRevisionsCmd.Flags().Int("limit", 20, "maximum number of revisions to show")

	pathCmd.AddCommand(pathListCmd)
	pathCmd.AddCommand(pathShowCmd)
	pathCmd.AddCommand(pathCreateCmd)
	pathCmd.AddCommand(pathUpdateCmd)
	pathCmd.AddCommand(pathPreviewCmd)
	pathCmd.AddCommand(pathDeleteCmd)
	pathCmd.AddCommand(pathRevisionsCmd)
	pathCmd.AddCommand(pathGenerateCmd)
}

// --- diff / apply (local, no server required) ---

func localDiff(oldFile, newFile string, asJSON bool, w io.Writer) error {
	oldState, err := loadStateFile(oldFile)
	if err != nil {
		return err
	}
	newState, err := loadStateFile(newFile)
	if err != nil {
		return err
	}

	d := pathdiff.Compute(oldState, newState)
	if asJSON {
		return printJSON(w, d)
	}
	for line := range pathdiff.Summarize(d) {
		fmt.Fprintln(w, line)
	}
	return nil
}

func localApply(stateFile, diffFile, outFile string, w io.Writer) error {
	state, err := loadStateFile(stateFile)
	if err != nil {
		return err
	}
	var d pathdiff.Diff
	if err := decodeFile(diffFile, &d); err != nil {
		return err
	}
	next := pathdiff.Apply(state, d)

	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outFile, err)
		}
		defer f.Close()
		return printJSON(f, next)
	}
	return printJSON(w, next)
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-file> <new-file>",
	Short: "Diff two path state files locally",
	Long: `Diff two path state files without talking to the server.

Examples:
  pathlight diff before.json after.json
  pathlight diff before.yaml after.yaml --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return localDiff(args[0], args[1], asJSON, os.Stdout)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <state-file> <diff-file>",
	Short: "Apply a diff to a path state file, printing the result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		outFile, _ := cmd.Flags().GetString("output")
		return localApply(args[0], args[1], outFile, os.Stdout)
	},
}

func init() {
	diffCmd.Flags().Bool("json", false, "print the structured diff instead of a summary")
	applyCmd.Flags().StringP("output", "o", "", "write the resulting state to a file instead of stdout")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the web for career resources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		typ, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		if typ != "" {
			path += "&type=" + url.QueryEscape(typ)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		if asJSON {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(os.Stdout, raw)
		}

		var response struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"results"`
			FromDatabase bool `json:"from_database"`
		}
		if err := decodeJSON(resp, &response); err != nil {
			return err
		}

		if len(response.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		if response.FromDatabase {
			printStep("Serving cached results")
		}
		for i, r := range response.Results {
			fmt.Printf("\n%s %s\n", colorize(colorBold, fmt.Sprintf("%d.", i+1)), r.Title)
			fmt.Printf("   %s\n", colorize(colorCyan, r.URL))
			if r.Snippet != "" {
				fmt.Printf("   %s\n", truncate(r.Snippet, 300))
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("type", "", "search vertical: web, news, or videos")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- trends ---

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show trending career domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/trends")
		if err != nil {
			return err
		}

		if asJSON {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(os.Stdout, raw)
		}

		var report struct {
			Domains []struct {
				Name         string   `json:"name"`
				Growth       string   `json:"growth"`
				Summary      string   `json:"summary"`
				ExampleRoles []string `json:"example_roles"`
			} `json:"domains"`
			GeneratedAt  string `json:"generated_at"`
			FromDatabase bool   `json:"from_database"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if report.FromDatabase {
			printStep("Serving cached report (generated %s)", report.GeneratedAt)
		}
		for _, d := range report.Domains {
			fmt.Printf("\n%s  %s\n", colorize(colorBold, d.Name), d.Growth)
			fmt.Printf("  %s\n", d.Summary)
			if len(d.ExampleRoles) > 0 {
				fmt.Printf("  Roles: %s\n", strings.Join(d.ExampleRoles, ", "))
			}
		}
		return nil
	},
}

func init() {
	trendsCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- keywords ---

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Extract career keywords from text",
	Long: `Extract skills, roles, and domains from a job posting or resume.

Examples:
  pathlight keywords --text "Senior Go developer, Kubernetes required"
  pathlight keywords --file resume.pdf
  cat posting.txt | pathlight keywords`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		switch {
		case text != "":
		case file != "":
			var err error
			if text, err = keywords.ReadResume(file); err != nil {
				return err
			}
		default:
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}

		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("no text provided; use --text, --file, or stdin")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/keywords", map[string]string{"text": text})
		if err != nil {
			return err
		}

		var cls struct {
			Skills  []string `json:"skills"`
			Roles   []string `json:"roles"`
			Domains []string `json:"domains"`
		}
		if err := decodeJSON(resp, &cls); err != nil {
			return err
		}

		printKeywordGroup("Skills", cls.Skills)
		printKeywordGroup("Roles", cls.Roles)
		printKeywordGroup("Domains", cls.Domains)
		return nil
	},
}

func printKeywordGroup(label string, values []string) {
	if len(values) == 0 {
		fmt.Printf("%s (none)\n", colorize(colorBold, label+":"))
		return
	}
	fmt.Printf("%s %s\n", colorize(colorBold, label+":"), strings.Join(values, ", "))
}

func init() {
	keywordsCmd.Flags().String("text", "", "text to classify")
	keywordsCmd.Flags().String("file", "", "file to classify (PDF or plain text)")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetTokenCmd = &cobra.Command{
	Use:   "set-token <token>",
	Short: "Store the API token in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetToken(args[0]); err != nil {
			return err
		}

		printSuccess("API token stored")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetTokenCmd)
}
