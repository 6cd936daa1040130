package main

// prints the effective configuration => quick check of .env and env overrides

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"tcpgateway/internal/config"
)

func main() {
	config, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(config); err != nil {
		log.Fatalf("Failed to print config: %v", err)
	}
	fmt.Println("tcp:", config.TCPAddr(), "stats:", config.HTTPAddr())
}
