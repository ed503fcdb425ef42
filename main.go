package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fabex3d/fanbridge/cmd"
)

func main() {
	app := &cli.App{
		Name:   "fanbridge",
		Usage:  "local bridge for smart ceiling fans: UDP status intake, cloud sync, command dispatch",
		Action: cmd.BridgeCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cloud-host",
				EnvVars: []string{"CLOUD_HOST"},
				Value:   "",
			},
			&cli.IntFlag{
				Name:    "udp-port",
				EnvVars: []string{"UDP_PORT"},
				Value:   0,
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "feed-addr",
				EnvVars: []string{"FEED_ADDR"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:     "database-url",
				EnvVars:  []string{"DATABASE_URL"},
				Value:    "",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "migrations-folder",
				EnvVars:  []string{"MIGRATIONS_FOLDER"},
				Value:    "",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "refresh-schedule",
				EnvVars: []string{"REFRESH_SCHEDULE"},
				Value:   "*/5 * * * *",
			},
			&cli.DurationFlag{
				Name:    "debounce",
				EnvVars: []string{"COMMAND_DEBOUNCE"},
				Value:   500 * time.Millisecond,
			},
			&cli.StringFlag{
				Name:    "api-key",
				EnvVars: []string{"CLOUD_API_KEY"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "auth-token",
				EnvVars: []string{"CLOUD_AUTH_TOKEN"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
