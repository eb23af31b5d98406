package taxonomy

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tphakala/birdnotifier/internal/app"
	"github.com/tphakala/birdnotifier/internal/conf"
	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
)

// Command returns the cobra command searching the eBird taxonomy
func Command(settings *conf.Settings) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "taxonomy [query]",
		Short: "Search eBird species names or check the exclusion list",
		Long: `Search the eBird taxonomy for species whose common or scientific name contains
the query, ignoring case. With --check, report exclusion list entries that match no
eBird common name exactly; exclusion is case sensitive so these would never match.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if check {
				return checkExclusions(cmd, settings)
			}
			if len(args) == 0 {
				return errors.ValidationError("a query is required unless --check is given")
			}
			return search(cmd, settings, args[0])
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check exclusion entries against eBird common names")

	return cmd
}

func search(cmd *cobra.Command, settings *conf.Settings, query string) error {
	client, err := app.NewEBirdClient(settings, logger.Global())
	if err != nil {
		return err
	}

	entries, err := client.FindSpecies(cmd.Context(), query)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No species match %q\n", query)
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Common name", "Scientific name", "Code"})
	for i := range entries {
		tw.AppendRow(table.Row{entries[i].CommonName, entries[i].ScientificName, entries[i].SpeciesCode})
	}
	tw.Render()
	return nil
}

func checkExclusions(cmd *cobra.Command, settings *conf.Settings) error {
	out := cmd.OutOrStdout()
	if len(settings.Exclude) == 0 {
		fmt.Fprintln(out, "Exclusion list is empty")
		return nil
	}

	client, err := app.NewEBirdClient(settings, logger.Global())
	if err != nil {
		return err
	}

	unknown, err := client.UnknownCommonNames(cmd.Context(), settings.Exclude)
	if err != nil {
		return err
	}

	if len(unknown) == 0 {
		fmt.Fprintf(out, "All %d exclusion entries match eBird common names\n", len(settings.Exclude))
		return nil
	}

	for _, name := range unknown {
		fmt.Fprintf(out, "No eBird species is named %q\n", name)
	}
	return errors.ValidationError(fmt.Sprintf("%d of %d exclusion entries match no species", len(unknown), len(settings.Exclude)))
}
