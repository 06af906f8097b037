package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "push_service",
		Usage: "Sends FCM push notifications to every device registered for a user",
		Commands: []*cli.Command{
			serveCommand(),
			consumeCommand(),
			sendCommand(),
			enqueueCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("push_service: %v", err)
	}
}
