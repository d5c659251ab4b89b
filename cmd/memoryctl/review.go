package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"novel-memory-api/internal/application/review"
	"novel-memory-api/internal/domain/entity"
)

type reviewCommander struct {
	flags  *globalFlags
	levels []string
	quick  bool
}

func newReviewCmd(flags *globalFlags) *cobra.Command {
	cmder := &reviewCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Run consistency review rules",
	}
	cmd.PersistentFlags().StringSliceVarP(&cmder.levels, "levels", "l", nil, "Severity tiers to run (A, B, C, D)")

	chapterCmd := &cobra.Command{
		Use:   "chapter <book-id> <chapter-id>",
		Short: "Review one chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), func(ctx context.Context, engine *review.Engine, levels []entity.ReviewLevel) (*entity.ReviewReport, error) {
				if cmder.quick {
					return engine.QuickReview(ctx, args[0], args[1])
				}
				return engine.ReviewChapter(ctx, args[0], args[1], levels)
			})
		},
	}
	chapterCmd.Flags().BoolVarP(&cmder.quick, "quick", "q", false, "Only run error-level rules that need no model")

	bookCmd := &cobra.Command{
		Use:   "book <book-id>",
		Short: "Review every chapter of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), func(ctx context.Context, engine *review.Engine, levels []entity.ReviewLevel) (*entity.ReviewReport, error) {
				return engine.ReviewBook(ctx, args[0], levels)
			})
		},
	}

	cmd.AddCommand(chapterCmd, bookCmd)
	return cmd
}

func (c *reviewCommander) run(ctx context.Context, do func(context.Context, *review.Engine, []entity.ReviewLevel) (*entity.ReviewReport, error)) error {
	levels, err := review.ParseLevels(c.levels)
	if err != nil {
		return err
	}
	svc, cleanup, err := c.flags.services(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := do(ctx, svc.Review, levels)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, report)
}

func newRulesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List registered review rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := flags.services(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return printJSON(os.Stdout, svc.Review.Rules())
		},
	}
}
