package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/expense-approval/internal/config"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// Sends one Lark IM message with the configured app credentials, to check
// notification delivery without running the whole service.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	openID := flag.String("open-id", "", "Lark open_id of the recipient")
	text := flag.String("text", "Expense approval notification test", "message text")
	flag.Parse()

	fmt.Println("=== Lark IM Notification Test ===")

	if *openID == "" {
		fmt.Fprintln(os.Stderr, "usage: test-notification -open-id <ou_xxx> [-text msg] [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Lark.AppID == "" || cfg.Lark.AppSecret == "" {
		fmt.Fprintln(os.Stderr, "lark.app_id and lark.app_secret must be set (LARK_APP_ID, LARK_APP_SECRET)")
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{Level: "debug", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	sdk := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		BaseURL:   cfg.Lark.BaseURL,
		Debug:     cfg.Lark.Debug,
	}, logger)
	messenger := infraLark.NewMessenger(sdk, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("App ID:    %s\n", sdk.GetAppID())
	fmt.Printf("Recipient: %s\n", *openID)

	if err := messenger.SendText(ctx, *openID, *text); err != nil {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SUCCESS: message sent")
}
