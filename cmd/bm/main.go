package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bm-go/internal/app"
	"bm-go/internal/bm"
	"bm-go/internal/config"
	"bm-go/internal/encryption"
	"bm-go/internal/model"
	"bm-go/internal/tree"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file named by the application defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a BMApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateDocument", "UniversalAdd").
func newApp(ctx context.Context, operation string) (*app.BMApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewBMApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh app and closes it, reporting the first error.
func withApp(cmd *cobra.Command, operation string, fn func(ctx context.Context, a *app.BMApp) error) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, operation)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

// readPassphrase prompts on stderr and reads a line without echo when stdin
// is a terminal.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printForest writes one line per node, indented by depth.
func printForest(w io.Writer, forest []model.TreeNode) {
	tree.Walk(forest, func(n model.TreeNode, _ string, depth int) bool {
		indent := strings.Repeat("  ", depth)
		switch {
		case n.URL == "":
			fmt.Fprintf(w, "%s+ %s  [%s]\n", indent, n.Title, n.ID)
		default:
			fmt.Fprintf(w, "%s- %s <%s>  [%s]\n", indent, n.Title, n.URL, n.ID)
		}
		if n.Comment != "" {
			fmt.Fprintf(w, "%s    # %s\n", indent, n.Comment)
		}
		return true
	})
}

var rootCmd = &cobra.Command{
	Use:           "bm",
	Short:         "Hierarchical bookmark documents",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:   %s\n", cfg.HostID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:     %s (%s)\n", v.Name, v.Type)
		}
		fmt.Printf("Staging:   %s, ttl %s\n", cfg.Staging.Type, cfg.Staging.TTLOrDefault())
		fmt.Printf("Autosave:  %s\n", cfg.Autosave.DebounceOrDefault())
		return nil
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docCreateCmd = &cobra.Command{
	Use:   "create [TITLE]",
	Short: "Create a document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "CreateDocument", func(ctx context.Context, a *app.BMApp) error {
			title := ""
			if len(args) > 0 {
				title = args[0]
			}
			doc, err := a.CreateDocument(ctx, title)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s  %s\n", doc.ID, doc.Title)
			return nil
		})
	},
}

var docRenameCmd = &cobra.Command{
	Use:   "rename DOC TITLE",
	Short: "Rename a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RenameDocument", func(ctx context.Context, a *app.BMApp) error {
			doc, err := a.RenameDocument(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", doc.ID, doc.Title)
			return nil
		})
	},
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete DOC",
	Short: "Delete a document and its bookmarks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DeleteDocument", func(ctx context.Context, a *app.BMApp) error {
			return a.DeleteDocument(ctx, args[0])
		})
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListDocuments", func(ctx context.Context, a *app.BMApp) error {
			docs, err := a.ListDocuments(ctx)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents.")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%s  %s  %s\n", d.ID, d.CreatedAt.Local().Format("2006-01-02 15:04"), d.Title)
			}
			return nil
		})
	},
}

var docShowCmd = &cobra.Command{
	Use:   "show DOC",
	Short: "Print a document's tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("filter")
		depth, _ := cmd.Flags().GetInt("depth")

		return withApp(cmd, "ShowDocument", func(ctx context.Context, a *app.BMApp) error {
			doc, err := a.ShowDocument(ctx, args[0], query, depth)
			if err != nil {
				return err
			}
			fmt.Printf("%s  (%d bookmarks)\n", doc.Title, tree.Count(doc.Nodes))
			printForest(os.Stdout, doc.Nodes)
			return nil
		})
	},
}

// node command
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Edit bookmarks inside a document",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add DOC",
	Short: "Add a bookmark, or a folder when --url is omitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		title, _ := cmd.Flags().GetString("title")
		url, _ := cmd.Flags().GetString("url")

		return withApp(cmd, "AddNode", func(ctx context.Context, a *app.BMApp) error {
			id, err := a.AddNode(ctx, args[0], parent, title, url)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s\n", id)
			return nil
		})
	},
}

var nodeRmCmd = &cobra.Command{
	Use:   "rm DOC NODE...",
	Short: "Remove bookmarks and their subtrees",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RemoveNodes", func(ctx context.Context, a *app.BMApp) error {
			if err := a.RemoveNodes(ctx, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("Removed %d node(s)\n", len(args)-1)
			return nil
		})
	},
}

var nodeMvCmd = &cobra.Command{
	Use:   "mv DOC NODE...",
	Short: "Move bookmarks under a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		return withApp(cmd, "MoveNodes", func(ctx context.Context, a *app.BMApp) error {
			outcome, err := a.MoveNodes(ctx, args[0], args[1:], parent)
			if err != nil {
				return err
			}
			if outcome == tree.Redirected {
				fmt.Println("Target is inside a moved folder or missing; moved to the top level.")
				return nil
			}
			fmt.Printf("Moved %d node(s)\n", len(args)-1)
			return nil
		})
	},
}

var nodeCommentCmd = &cobra.Command{
	Use:   "comment DOC NODE [TEXT]",
	Short: "Set or clear a bookmark's comment",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 3 {
			text = args[2]
		}
		return withApp(cmd, "CommentNode", func(ctx context.Context, a *app.BMApp) error {
			return a.CommentNode(ctx, args[0], args[1], text)
		})
	},
}

var nodeTagCmd = &cobra.Command{
	Use:   "tag DOC NODE [TAG...]",
	Short: "Replace a bookmark's tags",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "TagNode", func(ctx context.Context, a *app.BMApp) error {
			return a.TagNode(ctx, args[0], args[1], args[2:])
		})
	},
}

// tag command
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage the tag catalog",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		description, _ := cmd.Flags().GetString("description")

		return withApp(cmd, "CreateTag", func(ctx context.Context, a *app.BMApp) error {
			tag, err := a.CreateTag(ctx, args[0], color, description)
			if err != nil {
				return err
			}
			fmt.Printf("Created tag %s\n", tag.Name)
			return nil
		})
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListTags", func(ctx context.Context, a *app.BMApp) error {
			tags, err := a.ListTags(ctx)
			if err != nil {
				return err
			}
			for _, t := range tags {
				fmt.Printf("%-20s  %-8s  %s\n", t.Name, t.Color, t.Description)
			}
			return nil
		})
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a tag and remove it from every bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DeleteTag", func(ctx context.Context, a *app.BMApp) error {
			return a.DeleteTag(ctx, args[0])
		})
	},
}

// setting command
var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read and write stored settings",
}

var settingGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "GetSetting", func(ctx context.Context, a *app.BMApp) error {
			value, ok, err := a.GetSetting(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("setting %s: %w", args[0], bm.ErrNotFound)
			}
			fmt.Println(value)
			return nil
		})
	},
}

var settingSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "SetSetting", func(ctx context.Context, a *app.BMApp) error {
			return a.SetSetting(ctx, args[0], args[1])
		})
	},
}

// stage command
var stageCmd = &cobra.Command{
	Use:   "stage [URL...]",
	Short: "Stage tabs for the next add",
	Long: `Stage replaces the staged buffer. Items come from URL arguments or from
--json, a file ("-" for stdin) holding [{"title": ..., "url": ...}].`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonPath, _ := cmd.Flags().GetString("json")

		var items []bm.Candidate
		for _, u := range args {
			items = append(items, bm.Candidate{URL: u})
		}
		if jsonPath != "" {
			var r io.Reader = os.Stdin
			if jsonPath != "-" {
				f, err := os.Open(jsonPath)
				if err != nil {
					return fmt.Errorf("opening %s: %w", jsonPath, err)
				}
				defer f.Close()
				r = f
			}
			var fromFile []bm.Candidate
			if err := json.NewDecoder(r).Decode(&fromFile); err != nil {
				return fmt.Errorf("decoding staged items: %w", err)
			}
			items = append(items, fromFile...)
		}

		return withApp(cmd, "Stage", func(ctx context.Context, a *app.BMApp) error {
			if err := a.Stage(ctx, items); err != nil {
				return err
			}
			fmt.Printf("Staged %d item(s)\n", len(items))
			return nil
		})
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add DOC",
	Short: "Add the selection, the staged tabs or the current tab to a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		selected, _ := cmd.Flags().GetStringArray("select")
		move, _ := cmd.Flags().GetBool("move")
		title, _ := cmd.Flags().GetString("title")
		url, _ := cmd.Flags().GetString("url")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		opts := app.AddOptions{DocID: args[0], ParentID: parent, Select: selected, Move: move}
		if url != "" {
			opts.Current = &bm.Candidate{Title: title, URL: url}
		}

		return withApp(cmd, "UniversalAdd", func(ctx context.Context, a *app.BMApp) error {
			if dryRun {
				probe, err := a.Probe(ctx, opts)
				if err != nil {
					return err
				}
				if !probe.HasItems {
					fmt.Println("Nothing to add.")
					return nil
				}
				fmt.Printf("Would add %s\n", bm.SourceDescription(probe.Source, probe.Count))
				return nil
			}

			res, err := a.UniversalAdd(ctx, opts)
			if err != nil {
				return err
			}
			verb := "Added"
			if opts.Move && res.Source == bm.SourceSelection {
				verb = "Moved"
			}
			fmt.Printf("%s %s\n", verb, bm.SourceDescription(res.Source, res.Count))
			if res.Redirected {
				fmt.Println("Parent was not a valid target; items were placed at the top level.")
			}
			if res.NotPersisted {
				fmt.Fprintln(os.Stderr, "warning: saved locally but the vault export failed")
			}
			for _, l := range res.Leftovers {
				fmt.Fprintf(os.Stderr, "warning: originals left in %s: %s (%v)\n", l.DocumentID, strings.Join(l.NodeIDs, ", "), l.Err)
			}
			return nil
		})
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the whole store as a backup envelope",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		output, _ := cmd.Flags().GetString("output")

		return withApp(cmd, "ExportSnapshot", func(ctx context.Context, a *app.BMApp) error {
			data, err := a.Export(ctx, encrypt)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(os.Stderr, "Exported %d bytes to %s\n", len(data), output)
			return nil
		})
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the whole store with a backup envelope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		return withApp(cmd, "ImportSnapshot", func(ctx context.Context, a *app.BMApp) error {
			err := a.Import(ctx, data, func() (string, error) {
				return readPassphrase("Passphrase: ")
			})
			if err != nil {
				return err
			}
			fmt.Println("Import complete.")
			return nil
		})
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persistence status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Status", func(ctx context.Context, a *app.BMApp) error {
			st := a.Status()
			fmt.Printf("Backend:    %s\n", st.Backend)
			fmt.Printf("Persisted:  %t\n", st.Persisted)
			if st.LastSaveAt != nil {
				fmt.Printf("Last save:  %s\n", st.LastSaveAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage export encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used for encrypted exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// doc subcommands
	docCmd.AddCommand(docCreateCmd)
	docCmd.AddCommand(docRenameCmd)
	docCmd.AddCommand(docDeleteCmd)
	docCmd.AddCommand(docListCmd)
	docCmd.AddCommand(docShowCmd)
	docShowCmd.Flags().StringP("filter", "f", "", "Only show bookmarks whose title or url matches")
	docShowCmd.Flags().IntP("depth", "d", 0, "Only show this many levels")

	// node subcommands
	nodeCmd.AddCommand(nodeAddCmd)
	nodeAddCmd.Flags().StringP("parent", "p", tree.Root, "Parent folder ID (default: top level)")
	nodeAddCmd.Flags().StringP("title", "t", "", "Title")
	nodeAddCmd.Flags().StringP("url", "u", "", "URL (omit to create a folder)")
	nodeCmd.AddCommand(nodeRmCmd)
	nodeCmd.AddCommand(nodeMvCmd)
	nodeMvCmd.Flags().StringP("parent", "p", tree.Root, "Destination folder ID (default: top level)")
	nodeCmd.AddCommand(nodeCommentCmd)
	nodeCmd.AddCommand(nodeTagCmd)

	// tag subcommands
	tagCmd.AddCommand(tagCreateCmd)
	tagCreateCmd.Flags().String("color", "", "Display color")
	tagCreateCmd.Flags().String("description", "", "Description")
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagRmCmd)

	// setting subcommands
	settingCmd.AddCommand(settingGetCmd)
	settingCmd.AddCommand(settingSetCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(settingCmd)
	rootCmd.AddCommand(stageCmd)
	stageCmd.Flags().String("json", "", `Read items from a JSON file ("-" for stdin)`)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("parent", "p", tree.Root, "Parent folder ID (default: top level)")
	addCmd.Flags().StringArrayP("select", "s", nil, "Selected bookmark as DOC:NODE (repeatable)")
	addCmd.Flags().Bool("move", false, "Delete the selected originals after adding")
	addCmd.Flags().String("title", "", "Title of the current tab")
	addCmd.Flags().String("url", "", "URL of the current tab")
	addCmd.Flags().Bool("dry-run", false, "Only report what would be added")
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Bool("encrypt", false, "Encrypt the payload with the configured public key")
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(keysCmd)
}
