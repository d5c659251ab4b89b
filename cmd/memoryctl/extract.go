package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newExtractCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract chapter memory with the configured model",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "chapter <chapter-id>",
		Short: "Extract summary, events, state changes and foreshadows of one chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := flags.services(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.Extraction.ExtractChapter(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "book <book-id>",
		Short: "Extract every chapter of a book in reading order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := flags.services(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := svc.Extraction.ExtractBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, job)
		},
	})

	return cmd
}
