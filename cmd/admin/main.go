package main

import (
	"log"

	"github.com/kataras/iris/v12"

	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/logger"
	"github.com/example/museauction/internal/server"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init()

	app := iris.New()
	server.RegisterAdminRoutes(app, cfg)

	addr := cfg.AdminServer.Addr()
	log.Printf("admin server listening on %s", addr)
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run admin server: %v", err)
	}
}
