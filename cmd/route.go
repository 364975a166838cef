package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/router"
	"github.com/openhouse-labs/scheme-intel/pkg/anthropic"
)

var (
	routeScheme     string
	routeTotalUnits int
	routeNoLLM      bool
)

var routeCmd = &cobra.Command{
	Use:   "route <question>",
	Short: "Classify a question into knowledge layers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		var classifier router.Classifier
		if !routeNoLLM && cfg.Anthropic.Key != "" {
			client := anthropic.NewClient(cfg.Anthropic.Key)
			classifier = router.NewClaudeClassifier(client, router.NewRegistry(), cfg.Anthropic.ClassifierModel)
		}

		r, err := router.New(classifier, nil,
			router.WithClassifyTimeout(cfg.Router.ClassifyTimeout()))
		if err != nil {
			return err
		}

		decision := r.Route(cmd.Context(), question, model.QueryContext{
			SchemeName: routeScheme,
			TotalUnits: routeTotalUnits,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(decision)
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeScheme, "scheme", "", "scheme name for classifier context")
	routeCmd.Flags().IntVar(&routeTotalUnits, "units", 0, "total unit count for classifier context")
	routeCmd.Flags().BoolVar(&routeNoLLM, "no-llm", false, "skip the classifier and use keyword fallback only")
	rootCmd.AddCommand(routeCmd)
}
