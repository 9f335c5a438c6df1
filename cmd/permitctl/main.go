// Command permitctl runs operator tasks against the permit store without
// going through the http api.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "permitctl",
		Short:   "Operator tools for the commute permit service",
		Version: Version,
	}

	rootCmd.AddCommand(expirationCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(notifyTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
