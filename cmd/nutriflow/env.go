package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles reads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadEnvFiles() {
	candidates := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "nutriflow", ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to read %s: %v\n", path, err)
		}
	}
}
