package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/codec"
)

func NewFormatsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the recording formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FORMAT\tDESCRIPTION\tAVAILABLE")
			for _, f := range codec.Formats() {
				fmt.Fprintf(w, "%s\t%s\t%t\n", f, f.Description(), f.Available())
			}
			return w.Flush()
		},
	}
}
