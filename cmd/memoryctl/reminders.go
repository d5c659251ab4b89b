package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"novel-memory-api/internal/application/memory"
)

type remindersCommander struct {
	flags   *globalFlags
	current int
	min     int
	text    bool
}

func newRemindersCmd(flags *globalFlags) *cobra.Command {
	cmder := &remindersCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "reminders <book-id>",
		Short: "List foreshadows that have stayed unresolved for too long",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmder.current <= 0 {
				return fmt.Errorf("--current must be a positive chapter order")
			}
			svc, cleanup, err := flags.services(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := svc.Foreshadows.Reminders(cmd.Context(), args[0], cmder.current, cmder.min)
			if err != nil {
				return err
			}
			if cmder.text {
				_, err := fmt.Fprintln(os.Stdout, memory.FormatReminders(items))
				return err
			}
			return printJSON(os.Stdout, items)
		},
	}
	cmd.Flags().IntVar(&cmder.current, "current", 0, "Current chapter order")
	cmd.Flags().IntVar(&cmder.min, "min", 0, "Minimum chapters since planting (default from config)")
	cmd.Flags().BoolVar(&cmder.text, "text", false, "Print the prompt block instead of JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Refresh reminder counts for every book with open foreshadows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := flags.services(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.Foreshadows.SweepReminders(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		},
	})
	return cmd
}
