package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"places_bot/src/dialog"
	"places_bot/src/types"
)

type ListOptions struct {
	*RootOptions
	JSON bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [category]",
		Short: "Print stored places, optionally those whose category contains a word",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.RootOptions, "")
			if err != nil {
				return err
			}
			defer a.Close()

			var places []types.Place
			if len(args) == 1 {
				places, err = a.store.ListByCategory(cmd.Context(), types.Normalize(args[0]))
			} else {
				places, err = a.store.ListAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.JSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(places)
			}
			if len(places) == 0 {
				fmt.Fprintln(out, "No places found.")
				return nil
			}
			fmt.Fprintln(out, dialog.FormatPlaces(places))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print places as JSON")

	return cmd
}
