// Command gonzalez exercises the library from the shell: it parses XML
// documents into a SAX event trace and compiles XPath expressions into
// their canonical printed form.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gonzalez",
	Short: "A streaming XML parser and XPath compiler",
	Long: `Gonzalez tokenizes XML incrementally, reporting SAX-style events
without building a document tree, and compiles XPath 3.1 expressions
into a shareable AST.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
