package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type RefreshOptions struct {
	*RootOptions
	Category string
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Replace the places table with a fresh Geoapify import",
		Long: `Fetches the configured category around the configured point and replaces
every stored place with the result. Nothing is deleted when the fetch fails.

Example:
  placesbot refresh
  placesbot refresh --category catering.cafe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.RootOptions, opts.Category)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.refresher.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d places for %s\n", res.Inserted, res.Category)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "Geoapify category to import (overrides category)")

	return cmd
}
