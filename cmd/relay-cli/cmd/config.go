package cmd

import (
	"os"

	"otprelay-backend/lib/configutil"
)

// mirrors the relayd config file, only the parts the CLI reads
type cliConfig struct {
	Panel struct {
		BaseUrl  string `json:"base_url"`
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"panel"`
	DatabaseFile string `json:"database_file"`
	LedgerFile   string `json:"ledger_file"`
}

func loadConfig() (cliConfig, error) {
	config, err := configutil.ReadConfig[cliConfig](configFile)
	if err != nil {
		return cliConfig{}, err
	}
	if v := os.Getenv("PANEL_USERNAME"); v != "" {
		config.Panel.Username = v
	}
	if v := os.Getenv("PANEL_PASSWORD"); v != "" {
		config.Panel.Password = v
	}
	if config.DatabaseFile == "" {
		config.DatabaseFile = "relay.db"
	}
	if config.LedgerFile == "" {
		config.LedgerFile = "delivered.json"
	}
	return config, nil
}
