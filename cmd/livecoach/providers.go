package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/livecoach/providers"
)

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List available providers and their capabilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return printProviders(cmd.OutOrStdout(), providers.ListAvailable(), asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "Print descriptors as JSON")
	return cmd
}

func printProviders(w io.Writer, descs []providers.Descriptor, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAUDIO\tVISION\tMAX IMAGES\tMODEL\tKEY ENV\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			d.ID, d.DisplayName,
			yesNo(d.Capabilities.SupportsRealtimeAudio), yesNo(d.Capabilities.SupportsVision),
			d.MaxImages, d.DefaultModel, d.APIKeyEnv, d.Description)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
