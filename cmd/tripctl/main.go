package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/client/cli"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
)

func main() {

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg, os.Stdin, os.Stdout)

	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		log.Printf("%v", err)
		app.Close()
		os.Exit(1)
	}

}
