package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			manifests, err := env.Store.List()
			if err != nil {
				return err
			}

			if jsonFlag {
				data, err := json.MarshalIndent(manifests, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding checkpoint list: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(manifests) == 0 {
				fmt.Println("No checkpoints yet. Run 'rewind save' to create one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCREATED\tFILES\tSIZE\tCONTEXT\tDESCRIPTION")
			for _, m := range manifests {
				context := "-"
				if m.Transcript != nil && m.Transcript.Cursor != nil {
					context = "chat"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					m.Name, m.TimestampISO, m.FileCount, formatBytes(m.TotalBytes), context, m.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output the checkpoint list as JSON")
	return cmd
}
