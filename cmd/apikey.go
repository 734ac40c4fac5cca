package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/models"
)

var (
	keyName string
	keyRole string
	keyTTL  time.Duration
)

var (
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage staff API keys",
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := models.Role(keyRole)
		if !role.Valid() {
			return errors.Errorf("unknown role %q", keyRole)
		}
		if strings.TrimSpace(keyName) == "" {
			return errors.New("--name is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		k, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		key := auth.NewAPIKey(k, keyName, role, keyTTL)
		if err := store.APIKeys.Create(cmd.Context(), key); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderGeneratedKey(key, k.Secret))
		return nil
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		keys, err := store.APIKeys.List(cmd.Context())
		if err != nil {
			return err
		}
		writeKeys(cmd.OutOrStdout(), keys, time.Now())
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid key id")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		if err := store.APIKeys.Revoke(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("revoked"), id)
		return nil
	},
}

func init() {
	apikeyGenerateCmd.Flags().StringVar(&keyName, "name", "", "name of the key holder")
	apikeyGenerateCmd.Flags().StringVar(&keyRole, "role", string(models.RoleStaff), "role: admin, operator or staff")
	apikeyGenerateCmd.Flags().DurationVar(&keyTTL, "ttl", 0, "lifetime of the key; 0 never expires")

	apikeyCmd.AddCommand(apikeyGenerateCmd, apikeyListCmd, apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func renderGeneratedKey(key *models.APIKey, secret string) string {
	expires := "never"
	if key.ExpiresAt != nil {
		expires = key.ExpiresAt.Format(time.RFC3339)
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		headStyle.Render("API key created"),
		fmt.Sprintf("id       %s", key.ID),
		fmt.Sprintf("name     %s", key.Name),
		fmt.Sprintf("role     %s", key.Role),
		fmt.Sprintf("expires  %s", expires),
		"",
		secret,
		mutedStyle.Render("Store the key now, it is not shown again."),
	)
	return boxStyle.Render(body)
}

func keyState(key models.APIKey, now time.Time) string {
	switch {
	case !key.Active:
		return "revoked"
	case key.ExpiresAt != nil && key.ExpiresAt.Before(now):
		return "expired"
	default:
		return "active"
	}
}

func writeKeys(w io.Writer, keys []models.APIKey, now time.Time) {
	if len(keys) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no API keys"))
		return
	}

	fmt.Fprintln(w, headStyle.Render(fmt.Sprintf("%-36s  %-8s  %-8s  %-8s  %s", "ID", "PREFIX", "ROLE", "STATE", "NAME")))
	for _, key := range keys {
		state := keyState(key, now)
		line := fmt.Sprintf("%-36s  %-8s  %-8s  %-8s  %s", key.ID, key.Prefix, key.Role, state, key.Name)
		if state != "active" {
			line = mutedStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}
