// Command mebelbot runs the lead-capture Telegram bot and the website API.
package main

import (
	"log"

	"github.com/m3rciful/mebelbot/core/buildinfo"
	corecmd "github.com/m3rciful/mebelbot/core/cmd"
	"github.com/m3rciful/mebelbot/internal/app"
	"github.com/m3rciful/mebelbot/internal/config"
)

func main() {
	log.Printf("mebelbot %s (%s)", buildinfo.Version, buildinfo.Commit)
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("mebelbot: %v", err)
	}
}
