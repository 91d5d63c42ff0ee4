package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dport96/ISERN-Graph/internal/matching"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
)

func newScoreCmd(global *globalOptions) *cobra.Command {
	var (
		format    string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "score <name-a> <name-b>",
		Short: "Compare two author names",
		Long: `score normalizes both names, prints the fused similarity and each signal behind
it, and reports whether the pair clears the matching threshold.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			cfg, _, err := global.load("score")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Matching.Threshold = threshold
			}
			if err := matching.ValidateThreshold(cfg.Matching.Threshold); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			engine, err := pipeline.NewEngine(cfg.Matching)
			if err != nil {
				return err
			}
			return writeScore(cmd.OutOrStdout(), pipeline.ScoreNames(engine, cfg.Matching.Threshold, args[0], args[1]), format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format (text, json)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "override matching.threshold")
	return cmd
}

func writeScore(w io.Writer, s pipeline.NameScore, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	verdict := "different people"
	if s.SamePerson {
		verdict = "same person"
	}
	initials := "n/a"
	if s.Score.InitialsApplicable {
		initials = fmt.Sprintf("%.3f", s.Score.Initials)
	}
	_, err := fmt.Fprintf(w, "%q -> %q\n%q -> %q\n\nfused          %.3f\nphonetic       %.3f\nedit distance  %.3f\ntoken set      %.3f\ninitials       %s\n\n%s (threshold %.2f)\n",
		s.A.Raw, s.A.Canonical, s.B.Raw, s.B.Canonical,
		s.Score.Fused, s.Score.Phonetic, s.Score.EditDistance, s.Score.TokenSet, initials,
		verdict, s.Threshold)
	return err
}
