package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openhouse-labs/scheme-intel/internal/cost"
	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/profile"
)

// ingestFile is the on-disk shape of an extraction result dump: one entry
// per house type, produced by a document-vision or AI-extraction job.
type ingestFile struct {
	TenantID      string `json:"tenant_id"`
	DevelopmentID string `json:"development_id"`
	Method        string `json:"method"`
	HouseTypes    []struct {
		HouseType string `json:"house_type"`
		CostCents int    `json:"cost_cents"`
		// VisionPages lets vision jobs report raw page counts instead of a
		// precomputed cost; we price them from the configured rates.
		VisionPages int `json:"vision_pages"`
		Facts       []struct {
			Key        string  `json:"key"`
			Value      any     `json:"value"`
			Unit       string  `json:"unit"`
			UnitID     string  `json:"unit_id"`
			Confidence float64 `json:"confidence"`
		} `json:"facts"`
	} `json:"house_types"`
}

var (
	ingestPath        string
	ingestPublish     bool
	ingestConcurrency int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest extraction results as passes, one per house type",
	Long:  "Reads an extraction result file and runs the pass lifecycle per house type: begin, record facts, finalize. House types are ingested concurrently; each failure marks its own pass as failed without affecting the others.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(ingestPath)
		if err != nil {
			return eris.Wrapf(err, "read %s", ingestPath)
		}
		var input ingestFile
		if err := json.Unmarshal(data, &input); err != nil {
			return eris.Wrapf(err, "parse %s", ingestPath)
		}
		if input.Method == "" {
			return eris.New("ingest file missing method")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		builder := profile.NewBuilder(st, loadWeights())
		pricing := cost.NewCalculator(cfg.Pricing)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ingestConcurrency)

		for _, ht := range input.HouseTypes {
			g.Go(func() error {
				scope := model.Scope{
					TenantID:      input.TenantID,
					DevelopmentID: input.DevelopmentID,
					HouseType:     ht.HouseType,
				}

				pass, err := builder.BeginPass(gctx, scope, input.Method)
				if err != nil {
					return err
				}

				facts := make([]profile.FactInput, len(ht.Facts))
				for i, f := range ht.Facts {
					facts[i] = profile.FactInput{
						Key:        f.Key,
						Value:      f.Value,
						Unit:       f.Unit,
						UnitID:     f.UnitID,
						Confidence: f.Confidence,
					}
				}

				if err := builder.RecordFacts(gctx, pass.ID, facts); err != nil {
					// Never leave the pass open.
					if abandonErr := builder.AbandonPass(gctx, pass.ID); abandonErr != nil {
						zap.L().Error("abandon pass failed",
							zap.String("pass_id", pass.ID), zap.Error(abandonErr))
					}
					return err
				}

				costCents := ht.CostCents
				if costCents == 0 && ht.VisionPages > 0 {
					tracker := cost.NewTracker(pricing)
					tracker.AddVision(pass.ID, ht.VisionPages)
					costCents = tracker.CostCents(pass.ID)
				}

				if err := builder.FinalizePass(gctx, pass.ID, model.PassOutcomeSuccess, costCents); err != nil {
					return err
				}

				if ingestPublish {
					if _, err := builder.PublishVersion(gctx, scope); err != nil {
						return err
					}
				}
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPath, "file", "", "extraction result JSON file (required)")
	ingestCmd.Flags().BoolVar(&ingestPublish, "publish", false, "publish a new profile version per house type after ingest")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "house types ingested in parallel")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
