package cmd

import (
	"fmt"
	"os"

	"github.com/smazurov/uvcbridge/internal/config"
	"github.com/spf13/cobra"
)

// CreateValidateCmd creates the validate command. It checks a stream
// profile file against the device limits without starting the daemon, so a
// broken catalog is caught before the gadget enumerates with it.
func CreateValidateCmd() *cobra.Command {
	var profilesFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stream profile configuration",
		Long: `Loads the stream profile file, checks it against the device limits ` +
			`(stream count, formats, sources) and prints the catalog each stream would advertise.`,
		Run: func(_ *cobra.Command, _ []string) {
			store := config.NewProfileStore(profilesFile)
			if err := store.Load(); err != nil {
				fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
				os.Exit(1)
			}

			for i, sp := range store.Streams() {
				source := sp.Source
				if source == "" {
					source = config.SourcePattern
				}
				fmt.Printf("stream %d: %s (source=%s, buffer=%d bytes)\n",
					i, sp.Name, source, sp.BufferBytes())
				for j, f := range sp.Formats {
					fmt.Printf("  format %d: %dx%d @ %d fps\n",
						j+1, f.Width, f.Height, f.FrameRate)
				}
			}
			fmt.Println("ok")
		},
	}

	cmd.Flags().StringVarP(&profilesFile, "profiles", "f", "profiles.toml", "Stream profile file to validate")

	return cmd
}
