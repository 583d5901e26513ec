package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loanguard/approval"
	"loanguard/config"
	"loanguard/loan"
	"loanguard/ml"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "loanctl",
		Short:         "Train and query the loan approval decision tree",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	loadEngine := func(ctx context.Context, maxDepth int) (*approval.Engine, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if maxDepth >= 0 {
			cfg.Model.MaxDepth = maxDepth
		}
		return approval.NewEngine(ctx, cfg.Model, zap.NewNop())
	}

	root.AddCommand(newTrainCmd(loadEngine), newEvaluateCmd(), newPredictCmd(loadEngine))
	return root
}

type engineLoader func(ctx context.Context, maxDepth int) (*approval.Engine, error)

func newTrainCmd(load engineLoader) *cobra.Command {
	var modelPath string
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train on the built-in records, print holdout metrics and the learned rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := load(cmd.Context(), maxDepth)
			if err != nil {
				return err
			}
			snap, err := engine.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accuracy=%.2f precision=%.2f recall=%.2f train=%d test=%d depth=%d\n",
				snap.Accuracy, snap.Precision, snap.Recall, snap.TrainSize, snap.TestSize, snap.Depth)
			fmt.Fprint(out, snap.Rules)

			if modelPath == "" {
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
				return fmt.Errorf("create model dir: %w", err)
			}
			if err := engine.SaveModel(modelPath); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			fmt.Fprintf(out, "model saved to %s\n", modelPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model-path", "", "write the trained tree as JSON")
	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "override model.max_depth (0 grows until pure)")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	var modelPath string
	var modelType string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a saved tree against the built-in records",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ml.LoadModel(modelType, modelPath)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}

			records := loan.SampleRecords()
			employment := make([]string, len(records))
			for i, r := range records {
				employment[i] = string(r.Employment)
			}
			encoder := &ml.LabelEncoder{}
			codes, err := encoder.FitTransform(employment)
			if err != nil {
				return err
			}

			X := make([][]float64, len(records))
			y := make([]int, len(records))
			for i, r := range records {
				X[i] = r.Vector(codes[i])
				y[i] = r.Label()
			}

			eval, err := ml.Evaluate(model, X, y, loan.LabelApproved)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accuracy=%.2f precision=%.2f recall=%.2f samples=%d\n",
				eval.Accuracy, eval.Precision, eval.Recall, eval.Samples)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model-path", "models/decision_tree.json", "saved tree JSON")
	cmd.Flags().StringVar(&modelType, "model-type", ml.ModelTypeDecisionTree, "model type")
	return cmd
}

func newPredictCmd(load engineLoader) *cobra.Command {
	a := loan.DefaultApplicant()
	var employment string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Decide a single application",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Employment = loan.EmploymentType(employment)
			engine, err := load(cmd.Context(), -1)
			if err != nil {
				return err
			}
			decision, err := engine.Decide(cmd.Context(), a)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		},
	}
	cmd.Flags().IntVar(&a.Age, "age", a.Age, "applicant age")
	cmd.Flags().IntVar(&a.Income, "income", a.Income, "annual income (₹)")
	cmd.Flags().IntVar(&a.CreditScore, "credit-score", a.CreditScore, "credit score")
	cmd.Flags().IntVar(&a.LoanAmount, "loan-amount", a.LoanAmount, "requested loan amount (₹)")
	cmd.Flags().IntVar(&a.Dependents, "dependents", a.Dependents, "number of dependents")
	cmd.Flags().StringVar(&employment, "employment", string(a.Employment), "Business, Salaried or Self-Employed")
	return cmd
}
