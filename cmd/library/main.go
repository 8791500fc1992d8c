package main

import (
	"errors"
	stdLog "log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/Astemirdum/library-records/library/app"
	"github.com/Astemirdum/library-records/library/config"
)

// @title        Library API
// @version      1.0.0
// @description  Simple library management system: books, borrowers and loans.
// @BasePath     /api

//go:generate swag init -g cmd/library/main.go -d ../../ -o ../../swagger --parseDependency
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		stdLog.Fatal("load envs from .env ", err)
	}
	cfg := config.NewConfig(
		config.WithLogLevel(zapcore.DebugLevel),
		config.WithWriteTimeout(time.Minute),
	)

	if err := app.Run(cfg); err != nil {
		stdLog.Fatal(err)
	}
}
