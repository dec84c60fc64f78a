package cmd

import (
	"fmt"
	"os"
	"strings"

	"otprelay-backend/lib/otp"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <message text>",
	Short: "Runs the code extractor over the given text.",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "incorrect number of arguments")
			os.Exit(1)
		}

		text := strings.Join(args, " ")
		code, ok := otp.Extract(text)
		if !ok {
			fmt.Println("no code found")
			os.Exit(1)
		}
		fmt.Println(code)
	},
}
