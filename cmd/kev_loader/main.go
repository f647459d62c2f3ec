package main

import (
	"flag"
	"log"
	"os"

	"github.com/seclens/vulnprio/internal/adapters/intel/kev"
)

func main() {
	seedFile := flag.String("seed-file", "./known_exploited_vulnerabilities.json", "Path to a KEV catalog JSON file")
	cacheDir := flag.String("cache-dir", "./data/feeds", "Directory for the KEV snapshot mirror")
	flag.Parse()

	log.Println("=== KEV Seed Loader ===")
	log.Printf("Seed file: %s", *seedFile)
	log.Printf("Cache dir: %s", *cacheDir)

	if err := os.MkdirAll(*cacheDir, 0755); err != nil {
		log.Fatalf("Failed to create cache directory: %v", err)
	}

	client := kev.NewClient(*cacheDir)
	count, err := client.SeedFromFile(*seedFile)
	if err != nil {
		log.Fatalf("Failed to load seed catalog: %v", err)
	}

	stats := client.Stats()
	log.Printf("✓ Catalog mirror now contains %d CVEs (%d ransomware-related)", count, stats.RansomwareRelated)
}
