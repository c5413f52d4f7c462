package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/convertly/funnel"
	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/flow"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted booking through the engine",
	Long: `Drives one synthetic booking through the full lifecycle, including a
price-hesitation episode, and prints every operation result as JSON.
Useful for inspecting which messages and hooks the current rule tables
produce.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := logging.NewNop()
		if verbose {
			logger = logging.New(logging.ParseLevel("debug"))
		}

		engine := funnel.New(funnel.WithLogger(logger))
		ctx := context.Background()
		txID := uuid.NewString()
		sessionID := uuid.NewString()

		print := func(step string, res *flow.Result, err error) {
			out := map[string]any{"step": step}
			if err != nil {
				out["error"] = err.Error()
			} else {
				out["result"] = res
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(os.Stdout, string(data))
		}

		res, err := engine.Initialize(ctx, txID, "demo-customer", sessionID,
			&domain.DeviceSignal{Platform: "mobile"})
		print("initialize", res, err)

		for _, stage := range []domain.Stage{
			domain.StageValidating,
			domain.StageResourceMatch,
		} {
			res, err = engine.Transition(ctx, txID, stage, "")
			print("transition:"+string(stage), res, err)
		}

		// A customer circling the price page with sinking confidence.
		res, err = engine.RecordView(ctx, txID, "/booking/price", "price_summary")
		print("view:price", res, err)
		res, err = engine.UpdateConfidence(ctx, txID, 35,
			[]string{domain.HesitationPrice}, []string{"first_time_customer"})
		print("confidence:35", res, err)
		res, err = engine.ProcessHesitation(ctx, txID)
		print("hesitation", res, err)

		for _, stage := range []domain.Stage{
			domain.StageAssigned,
			domain.StageAccepted,
			domain.StageConfirmed,
			domain.StageEscrowPending,
		} {
			res, err = engine.Transition(ctx, txID, stage, "")
			print("transition:"+string(stage), res, err)
		}

		res, err = engine.Complete(ctx, txID)
		print("complete", res, err)

		stats, _ := json.MarshalIndent(engine.SessionStats(), "", "  ")
		fmt.Fprintln(os.Stdout, string(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolP("verbose", "v", false, "Log engine internals to stderr")
}
