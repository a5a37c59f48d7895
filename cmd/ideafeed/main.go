package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/ideafeed/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("アプリケーションの実行に失敗しました", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
