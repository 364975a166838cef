package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/openhouse-labs/scheme-intel/internal/resolver"
)

var resolveAll bool

var resolveCmd = &cobra.Command{
	Use:   "resolve [key]",
	Short: "Resolve the canonical value for a fact key",
	Long:  "Queries all source tiers for the scope and prints the winning fact per the precedence policy (vision_extraction > ai_document_profile > template_default).",
	Args:  cobra.MaximumNArgs(1),
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

		r := resolver.New(st, resolver.WithConfidenceFloor(cfg.Resolver.ConfidenceFloor))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if resolveAll || len(args) == 0 {
			all, err := r.ResolveAll(ctx, scope)
			if err != nil {
				return err
			}
			return enc.Encode(all)
		}

		res, err := r.Resolve(ctx, scope, args[0])
		if err != nil {
			return err
		}
		return enc.Encode(res)
	},
}

func init() {
	addScopeFlags(resolveCmd, true)
	resolveCmd.Flags().BoolVar(&resolveAll, "all", false, "resolve every fact key in the scope")
	rootCmd.AddCommand(resolveCmd)
}
