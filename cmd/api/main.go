package main

import (
	"log"
	"os"
	"path"

	"github.com/eskrenkovic/code-duel-go/internal/config"
	"github.com/eskrenkovic/code-duel-go/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 {
		rootPath := os.Args[1]
		if rootPath == "" {
			log.Fatal("root directoy path is empty")
		}

		if err := os.Setenv(config.RootPathEnv, rootPath); err != nil {
			log.Fatal(err)
		}

		if err := godotenv.Load(path.Join(rootPath, "config.env")); err != nil {
			log.Fatal(err)
		}
	}

	config, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zap.ReplaceGlobals(config.Logger)

	server, err := server.NewHTTPServer(config)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := server.Stop(); err != nil {
			log.Fatal(err)
		}
	}()

	if err = server.Start(); err != nil {
		log.Fatal(err)
	}
}
