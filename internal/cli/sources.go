package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their capabilities",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Registry == nil {
		return errors.New("connector registry not configured")
	}

	kinds := services.Registry.Kinds()
	if len(kinds) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	cmd.Printf("%-10s %-6s %-6s %-10s\n", "SOURCE", "LIVE", "INDEX", "DELETIONS")
	for _, kind := range kinds {
		connector, err := services.Registry.Get(kind)
		if err != nil {
			continue
		}
		caps := connector.Capabilities()
		cmd.Printf("%-10s %-6s %-6s %-10s\n", kind,
			yesNo(caps.SupportsLiveFetch),
			yesNo(caps.SupportsIndexing),
			yesNo(caps.SupportsDeletions))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
