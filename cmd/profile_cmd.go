package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openhouse-labs/scheme-intel/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage versioned intelligence profiles",
}

var profilePublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a new profile version from finalized-pass facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope, err := scopeFromFlags()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		builder := profile.NewBuilder(st, loadWeights())
		published, err := builder.PublishVersion(ctx, scope)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(published)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile version for a house type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope, err := scopeFromFlags()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		current, err := st.GetCurrentProfile(ctx, scope)
		if err != nil {
			return err
		}
		if current == nil {
			cmd.Println("no current profile for this house type")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(current)
	},
}

var templatesPath string

var profileSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync template-default facts from a YAML template file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope, err := scopeFromFlags()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(templatesPath)
		if err != nil {
			return err
		}
		var templates []profile.TemplateFact
		if err := yaml.Unmarshal(data, &templates); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		builder := profile.NewBuilder(st, loadWeights())
		written, err := builder.SyncTemplates(ctx, scope, templates)
		if err != nil {
			return err
		}
		cmd.Printf("synced %d template facts\n", written)
		return nil
	},
}

// loadWeights reads the configured weight table, falling back to defaults.
func loadWeights() profile.WeightTable {
	if cfg.Profile.WeightsPath == "" {
		return profile.DefaultWeights()
	}
	weights, err := profile.LoadWeights(cfg.Profile.WeightsPath)
	if err != nil {
		return profile.DefaultWeights()
	}
	return weights
}

func init() {
	addScopeFlags(profilePublishCmd, false)
	addScopeFlags(profileShowCmd, false)
	addScopeFlags(profileSyncCmd, false)
	profileSyncCmd.Flags().StringVar(&templatesPath, "templates", "templates.yaml", "template facts YAML file")
	profileCmd.AddCommand(profilePublishCmd, profileShowCmd, profileSyncCmd)
	rootCmd.AddCommand(profileCmd)
}
