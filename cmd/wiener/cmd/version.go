package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/msto63/wiener/pkg/core/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
		fmt.Printf("  Script format:     %s\n", version.ScriptFormat)
		fmt.Printf("  Provider protocol: %s\n", version.ProviderProtocol)
		fmt.Printf("  Go version:        %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:           %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
