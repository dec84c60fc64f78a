package cmd

import (
	"database/sql"
	"log"
	"os"
	"time"

	"otprelay-backend/services/relay/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

func init() {
	historyCmd.Flags().Int64Var(&historyLimit, "limit", 20, "maximum rows to print")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int64

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Prints recently delivered codes from the history database.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}

		database, err := sql.Open("sqlite", config.DatabaseFile)
		if err != nil {
			log.Fatal(err)
		}
		defer database.Close()
		qry := db.New(database)

		items, err := qry.ListRecentDeliveries(cmd.Context(), historyLimit)
		if err != nil {
			log.Fatal(err)
		}
		count, err := qry.CountDeliveries(cmd.Context())
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Delivered", "Source", "Channel", "Code"})

		for _, item := range items {
			t.AppendRow(table.Row{
				time.Unix(item.Deliveredat, 0).Format(time.DateTime),
				item.Source,
				item.Channel,
				item.Code,
			})
		}

		t.AppendFooter(table.Row{"Total", "", "", count})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
