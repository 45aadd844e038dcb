package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jarvis/internal/api"
	"github.com/kalambet/jarvis/internal/assistant"
	"github.com/kalambet/jarvis/internal/config"
	"github.com/kalambet/jarvis/internal/messaging"
	"github.com/kalambet/jarvis/internal/profile"
)

// loadLocal loads config and a quiet logger for commands that work on the
// data directory directly.
func loadLocal() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(os.Stderr, "warn"), nil
}

func localProfiles() (*profile.Manager, error) {
	cfg, logger, err := loadLocal()
	if err != nil {
		return nil, err
	}
	return openProfiles(cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- say ---

var sayCmd = &cobra.Command{
	Use:   "say <utterance>",
	Short: "Send one command to the running server",
	Long: `Send one command to the running server and print the reply.

Examples:
  jarvis say what is the weather
  jarvis say --profile Alice send message to bob saying hi`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		asJSON, _ := cmd.Flags().GetBool("json")
		if profileName == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			profileName = cfg.Assistant.DefaultProfile
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		out, err := sendTurn(cmd.Context(), client, profileName, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, out)
		}
		writeOutcome(os.Stdout, out)
		return nil
	},
}

func init() {
	sayCmd.Flags().String("profile", "", "profile to run the command for (default: assistant.default_profile)")
	sayCmd.Flags().Bool("json", false, "print the full outcome as JSON")
}

func sendTurn(ctx context.Context, client *apiClient, profileName, utterance string) (assistant.Outcome, error) {
	var out assistant.Outcome
	req := api.TurnRequest{Profile: profileName, Utterance: utterance}
	if err := client.call(ctx, http.MethodPost, "/turn", req, &out); err != nil {
		return assistant.Outcome{}, err
	}
	return out, nil
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := localProfiles()
		if err != nil {
			return err
		}
		names := m.Names()
		if len(names) == 0 {
			fmt.Println("No profiles found.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, n := range names {
			p, err := m.Get(n)
			if err != nil {
				continue
			}
			state := ""
			if m.IsAuthenticated(n, "") {
				state = colorize(colorGreen, "authenticated")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", colorize(colorBold, n), p.Location, state)
		}
		return tw.Flush()
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile as JSON (credential and session token omitted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := localProfiles()
		if err != nil {
			return err
		}
		p, err := m.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, api.NewProfileView(p, m.IsAuthenticated(p.Name, "")))
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		m, err := localProfiles()
		if err != nil {
			return err
		}
		if _, err := m.Create(args[0], location); err != nil {
			return err
		}
		printSuccess("Created profile %s", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes profile %s and its contacts. Use --confirm to proceed.", args[0])
			return nil
		}
		m, err := localProfiles()
		if err != nil {
			return err
		}
		if err := m.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("Deleted profile %s", args[0])
		return nil
	},
}

var profileRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := localProfiles()
		if err != nil {
			return err
		}
		if _, err := m.Rename(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Renamed profile %s to %s", args[0], args[1])
		return nil
	},
}

var profileLogoutCmd = &cobra.Command{
	Use:   "logout <name>",
	Short: "End the session of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := localProfiles()
		if err != nil {
			return err
		}
		if err := m.Logout(args[0]); err != nil {
			return err
		}
		printSuccess("Logged out %s", args[0])
		return nil
	},
}

func init() {
	profileCreateCmd.Flags().String("location", "", "home location, used for weather")
	profileDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileRenameCmd)
	profileCmd.AddCommand(profileLogoutCmd)
}

// --- key ---

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Export or import the profile store key",
}

var keyExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write the profile store key to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := localProfiles()
		if err != nil {
			return err
		}
		if err := m.ExportKey(args[0]); err != nil {
			return err
		}
		printSuccess("Key exported to %s", args[0])
		printWarning("Anyone holding this file can read every profile. Keep it safe.")
		return nil
	},
}

var keyImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Replace the profile store key with one from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := localProfiles()
		if err != nil {
			return err
		}
		if err := m.ImportKey(args[0]); err != nil {
			return err
		}
		if err := m.LoadAll(); err != nil {
			return err
		}
		printSuccess("Key imported; %d profile(s) readable", len(m.Names()))
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyExportCmd)
	keyCmd.AddCommand(keyImportCmd)
}

// --- contact ---

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage a profile's contacts",
}

func contactProfile(cmd *cobra.Command) (*profile.Manager, *profile.Profile, error) {
	name, _ := cmd.Flags().GetString("profile")
	cfg, logger, err := loadLocal()
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		name = cfg.Assistant.DefaultProfile
	}
	m, err := openProfiles(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	p, err := m.Get(name)
	if err != nil {
		return nil, nil, err
	}
	return m, p, nil
}

var contactAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, _ := cmd.Flags().GetString("handle")
		phone, _ := cmd.Flags().GetString("phone")
		email, _ := cmd.Flags().GetString("email")

		m, p, err := contactProfile(cmd)
		if err != nil {
			return err
		}
		p.AddContact(&profile.Contact{Name: args[0], Handle: handle, Phone: phone, Email: email})
		if err := m.Save(p); err != nil {
			return err
		}
		printSuccess("Added %s to %s's contacts", args[0], p.Name)
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, err := contactProfile(cmd)
		if err != nil {
			return err
		}
		contacts := p.ContactList()
		if len(contacts) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}
		writeContacts(os.Stdout, contacts)
		return nil
	},
}

func writeContacts(w io.Writer, contacts []*profile.Contact) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range contacts {
		last := "never"
		if c.LastContacted != nil {
			last = c.LastContacted.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", colorize(colorBold, c.Name), c.Handle, c.Phone, c.Email, c.Frequency, last)
	}
	tw.Flush()
}

var contactRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, p, err := contactProfile(cmd)
		if err != nil {
			return err
		}
		if !p.RemoveContact(args[0]) {
			return fmt.Errorf("no contact named %q", args[0])
		}
		if err := m.Save(p); err != nil {
			return err
		}
		printSuccess("Removed %s", args[0])
		return nil
	},
}

var contactImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import chats from the messaging bridge as contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		cfg, logger, err := loadLocal()
		if err != nil {
			return err
		}
		if cfg.Messaging.BusURL == "" {
			return fmt.Errorf("messaging.bus_url is not set")
		}
		m, p, err := contactProfile(cmd)
		if err != nil {
			return err
		}

		mc, err := messaging.New(messaging.Config{
			URL:     cfg.Messaging.BusURL,
			Proxy:   cfg.Messaging.Proxy,
			Token:   cfg.Messaging.Token,
			Session: cfg.Messaging.Session,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer mc.Close()
		if p.MessagingSession != "" {
			mc.UseSession(p.MessagingSession)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		printStep("Fetching chats from %s...", cfg.Messaging.BusURL)
		peers, err := mc.Contacts(ctx)
		if err != nil {
			return err
		}

		added := importPeers(p, peers, overwrite)
		if added == 0 {
			printWarning("No new contacts")
			return nil
		}
		if err := m.Save(p); err != nil {
			return err
		}
		printSuccess("Imported %d contact(s) into %s", added, p.Name)
		return nil
	},
}

// importPeers adds bridge peers to p and returns how many were added.
// Existing contacts are kept unless overwrite is set.
func importPeers(p *profile.Profile, peers []messaging.Peer, overwrite bool) int {
	added := 0
	for _, peer := range peers {
		if strings.TrimSpace(peer.Name) == "" {
			continue
		}
		if _, exists := p.Contact(peer.Name); exists && !overwrite {
			continue
		}
		handle := peer.ID
		if peer.Username != "" {
			handle = "@" + strings.TrimPrefix(peer.Username, "@")
		}
		p.AddContact(&profile.Contact{Name: peer.Name, Handle: handle})
		added++
	}
	return added
}

func init() {
	contactCmd.PersistentFlags().String("profile", "", "profile whose contacts to manage (default: assistant.default_profile)")
	contactAddCmd.Flags().String("handle", "", "messaging handle, e.g. @bob")
	contactAddCmd.Flags().String("phone", "", "phone number")
	contactAddCmd.Flags().String("email", "", "email address")
	contactImportCmd.Flags().Bool("overwrite", false, "replace contacts that already exist")

	contactCmd.AddCommand(contactAddCmd)
	contactCmd.AddCommand(contactListCmd)
	contactCmd.AddCommand(contactRemoveCmd)
	contactCmd.AddCommand(contactImportCmd)
}

// --- learn ---

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Inspect the learning model",
}

var learnPredictCmd = &cobra.Command{
	Use:   "predict <utterance>",
	Short: "Show the category the learning model predicts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadLocal()
		if err != nil {
			return err
		}
		store := openLearning(cfg, logger)
		defer store.Close()

		if cat, ok := store.Predict(strings.Join(args, " ")); ok {
			fmt.Println(cat)
			return nil
		}
		fmt.Println("No prediction.")
		return nil
	},
}

var learnSuggestCmd = &cobra.Command{
	Use:   "suggest <prefix>",
	Short: "List categories with learned words starting with prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cfg, logger, err := loadLocal()
		if err != nil {
			return err
		}
		store := openLearning(cfg, logger)
		defer store.Close()

		for _, cat := range store.Suggest(args[0], limit) {
			fmt.Println(cat)
		}
		return nil
	},
}

var learnStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-category usage counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")
		cfg, logger, err := loadLocal()
		if err != nil {
			return err
		}
		store := openLearning(cfg, logger)
		defer store.Close()

		stats := store.Stats()
		if len(stats) == 0 {
			fmt.Println("Nothing learned yet.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tUSES\tSUCCESS\tTOP WORDS")
		for _, s := range stats {
			rate := 0.0
			if s.TotalUses > 0 {
				rate = float64(s.SuccessfulUses) / float64(s.TotalUses) * 100
			}
			fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%s\n", s.Name, s.TotalUses, rate, strings.Join(topWords(s.Keywords, top), ", "))
		}
		return tw.Flush()
	},
}

var learnResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget everything the learning model has learned",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This clears the learning model. Use --confirm to proceed.")
			return nil
		}
		cfg, logger, err := loadLocal()
		if err != nil {
			return err
		}
		store := openLearning(cfg, logger)
		defer store.Close()
		if err := store.Reset(); err != nil {
			return err
		}
		printSuccess("Learning model cleared")
		return nil
	},
}

// topWords returns up to n keywords ordered by count, ties alphabetically.
func topWords(counts map[string]int, n int) []string {
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return words
}

func init() {
	learnSuggestCmd.Flags().Int("limit", 3, "maximum number of categories")
	learnStatsCmd.Flags().Int("top", 5, "number of top words to show per category")
	learnResetCmd.Flags().Bool("confirm", false, "confirm reset")

	learnCmd.AddCommand(learnPredictCmd)
	learnCmd.AddCommand(learnSuggestCmd)
	learnCmd.AddCommand(learnStatsCmd)
	learnCmd.AddCommand(learnResetCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Browse the interaction journal of the running server",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		profileName, _ := cmd.Flags().GetString("profile")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if profileName != "" {
			q.Set("profile", profileName)
		}
		var interactions []struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"created_at"`
			Profile   string    `json:"profile"`
			Utterance string    `json:"utterance"`
			Category  string    `json:"category"`
			Status    string    `json:"status"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, "/interactions?"+q.Encode(), nil, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			id := ix.ID
			if len(id) > 10 {
				id = id[len(id)-10:]
			}
			fmt.Printf("%s  %s  %-10s %-12s %-12s %s\n",
				colorize(colorCyan, id),
				ix.CreatedAt.Local().Format(time.DateTime),
				ix.Profile,
				ix.Category,
				ix.Status,
				truncate(ix.Utterance, 80),
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var interaction any
		if err := client.call(cmd.Context(), http.MethodGet, "/interactions/"+url.PathEscape(args[0]), nil, &interaction); err != nil {
			return err
		}
		return printJSON(os.Stdout, interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsListCmd.Flags().String("profile", "", "only list interactions of this profile")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
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
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
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

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetTokenCmd = &cobra.Command{
	Use:   "set-messaging-token <token>",
	Short: "Store the messaging bridge token in the secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetMessagingToken(config.NewKeychain(), args[0]); err != nil {
			return err
		}
		printSuccess("Messaging token stored")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetTokenCmd)
}
