package cmd

import (
	"log"
	"os"

	"otprelay-backend/services/relay"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Prints the delivery dedupe ledger.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}

		ledger := relay.LoadLedger(config.LedgerFile, relay.DefaultRetention)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Key"})

		for _, key := range ledger.Keys() {
			t.AppendRow(table.Row{key})
		}

		t.AppendFooter(table.Row{ledger.Len()})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
