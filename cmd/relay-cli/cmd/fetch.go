package cmd

import (
	"log"
	"os"
	"time"

	"otprelay-backend/lib/otp"
	"otprelay-backend/lib/scrapers/smspanel"
	"otprelay-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	fetchCmd.Flags().StringVar(
		&fetchDate, "date", "",
		"day to fetch in YYYY-MM-DD form, defaults to today",
	)
	rootCmd.AddCommand(fetchCmd)
}

var fetchDate string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Logs into the panel, fetches one day of messages and prints them.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}

		client, err := smspanel.NewClient(smspanel.ClientOptions{
			BaseUrl:  config.Panel.BaseUrl,
			Username: config.Panel.Username,
			Password: config.Panel.Password,
		})
		if err != nil {
			log.Fatal(err)
		}

		day := timezone.Now()
		if fetchDate != "" {
			day, err = time.ParseInLocation("2006-01-02", fetchDate, timezone.Location)
			if err != nil {
				log.Fatal(err)
			}
		}

		payload, err := client.FetchWindow(cmd.Context(), smspanel.DayWindow(day))
		if err != nil {
			log.Fatal(err)
		}
		records := smspanel.Normalize(payload)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Source", "Channel", "Code", "Text"})

		for _, rec := range records {
			code, ok := otp.Extract(rec.Text)
			if !ok {
				code = "-"
			}
			t.AppendRow(table.Row{rec.Timestamp, rec.Source, rec.Channel, code, rec.Text})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
