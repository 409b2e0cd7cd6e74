package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"scribedesk/internal/config"
	"scribedesk/internal/platform/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scribedesk: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.File, cfg.Log.Level)
	app := NewApp(cfg, log)

	err = wails.Run(&options.App{
		Title:     "ScribeDesk",
		Width:     1180,
		Height:    780,
		MinWidth:  720,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Logger:     log,
		LogLevel:   logging.ParseLevel(cfg.Log.Level),
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Error(fmt.Sprintf("wails: %v", err))
		os.Exit(1)
	}
}
