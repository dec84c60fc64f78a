package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"otprelay-backend/lib/configutil"
	"otprelay-backend/lib/notify"
	"otprelay-backend/lib/restyutil"
	"otprelay-backend/lib/scrapers/smspanel"
	"otprelay-backend/lib/serviceutil"
	"otprelay-backend/lib/telemetry"
	"otprelay-backend/services/relay"
	"otprelay-backend/services/relay/db"
)

type PanelConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatId   string `json:"chat_id"`
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	To           string `json:"to"`
}

type Config struct {
	Panel               PanelConfig    `json:"panel"`
	Telegram            TelegramConfig `json:"telegram"`
	Smtp                SmtpConfig     `json:"smtp"`
	DatabaseFile        string         `json:"database_file"`
	LedgerFile          string         `json:"ledger_file"`
	PollIntervalSeconds int            `json:"poll_interval_seconds"`
	Port                int            `json:"port"`
	// when set, full http request/response dumps land here
	DebugHttpDir string `json:"debug_http_dir"`
}

// secrets can come from the environment instead of the config file
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PANEL_USERNAME"); v != "" {
		config.Panel.Username = v
	}
	if v := os.Getenv("PANEL_PASSWORD"); v != "" {
		config.Panel.Password = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		config.Telegram.ChatId = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		config.Smtp.Password = v
	}
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to load configuration", err)
	}
	applyEnvOverrides(&config)

	if config.Panel.BaseUrl == "" || config.Panel.Username == "" || config.Panel.Password == "" {
		serviceutil.Fatal("incomplete configuration", os.ErrInvalid)
	}
	if config.Telegram.BotToken == "" || config.Telegram.ChatId == "" {
		serviceutil.Fatal("incomplete telegram configuration", os.ErrInvalid)
	}
	if config.DatabaseFile == "" {
		config.DatabaseFile = "relay.db"
	}
	if config.LedgerFile == "" {
		config.LedgerFile = "delivered.json"
	}
	if config.PollIntervalSeconds <= 0 {
		config.PollIntervalSeconds = 30
	}
	if config.Port == 0 {
		config.Port = 9300
	}

	tel, err := telemetry.SetupFromEnv(ctx, "relayd")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	if err == nil {
		defer tel.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}

	var debugOutput restyutil.InstrumentOutput
	if config.DebugHttpDir != "" {
		debugOutput = restyutil.NewFilesystemOutput(config.DebugHttpDir)
	}

	client, err := smspanel.NewClient(smspanel.ClientOptions{
		BaseUrl:     config.Panel.BaseUrl,
		Username:    config.Panel.Username,
		Password:    config.Panel.Password,
		DebugOutput: debugOutput,
	})
	if err != nil {
		serviceutil.Fatal("failed to create panel client", err)
	}

	database, err := sql.Open("sqlite", config.DatabaseFile)
	if err != nil {
		serviceutil.Fatal("failed to open delivery history database", err)
	}
	_, err = database.ExecContext(ctx, db.Schema)
	if err != nil {
		serviceutil.Fatal("failed to migrate delivery history database", err)
	}

	ledger := relay.LoadLedger(config.LedgerFile, relay.DefaultRetention)

	notifier := notify.NewTelegram(notify.TelegramOptions{
		Token:  config.Telegram.BotToken,
		ChatId: config.Telegram.ChatId,
	})

	service := relay.NewService(client, ledger, notifier, database, relay.Options{
		PollInterval: time.Duration(config.PollIntervalSeconds) * time.Second,
	})
	if config.Smtp.Server != "" {
		service.SetMirror(notify.NewEmail(notify.SmtpOptions{
			Server:       config.Smtp.Server,
			Port:         config.Smtp.Port,
			EmailAddress: config.Smtp.EmailAddress,
			Password:     config.Smtp.Password,
			To:           config.Smtp.To,
		}))
	}

	go service.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(service))
	go serviceutil.StartHttpServer(config.Port, mux)

	<-ctx.Done()
}

func healthHandler(service *relay.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lastPoll, lastErr := service.Status()

		status := struct {
			LastPoll  string `json:"last_poll"`
			LastError string `json:"last_error,omitempty"`
		}{}
		if !lastPoll.IsZero() {
			status.LastPoll = lastPoll.Format(time.RFC3339)
		}
		if lastErr != nil {
			status.LastError = lastErr.Error()
		}

		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}
