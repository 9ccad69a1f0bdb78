package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

//go:generate swag init -d ../.. -g cmd/neuralsalvage/main.go -o ../../docs

// @title           Neural Salvage API
// @version         1.0
// @description     Upload, analyse, sell and mint digital leftovers.
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
