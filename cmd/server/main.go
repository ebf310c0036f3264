package main

import (
	"flag"
	"log"
	"os"

	approuters "github.com/Md-KamranQutub/chatify/internal/app_routers"
	"github.com/Md-KamranQutub/chatify/internal/configuration"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "optional JSON config file")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	config, err := configuration.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := configuration.BuildContainer(config)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	// Setup routers
	approuters.StartServer(container)
}
