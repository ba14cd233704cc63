package main

import (
	"go.uber.org/zap"

	"github.com/livetree/livetree/internal/app"
	"github.com/livetree/livetree/internal/config"
	"github.com/livetree/livetree/internal/logutil"
)

func main() {
	logger := logutil.Init()
	defer logger.Sync()

	srv := app.NewServer(config.Load())
	if err := srv.Run(); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}
