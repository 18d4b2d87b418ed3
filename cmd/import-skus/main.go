package main

import (
	"flag"
	"log"
	"os"

	"github.com/maltedev/sku-scraper/internal/input"
	"github.com/maltedev/sku-scraper/internal/logger"
	"github.com/maltedev/sku-scraper/internal/models"
)

func main() {
	var (
		csvPath  = flag.String("csv", "", "CSV export to read SKUs from")
		column   = flag.String("column", "SKU", "Column holding the identifier")
		retailer = flag.String("type", "Amazon", "Retailer of the imported SKUs (Amazon or Walmart)")
		limit    = flag.Int("limit", 0, "Import at most this many rows (0 = all)")
		output   = flag.String("output", "skus.json", "SKU list to merge into")
	)
	flag.Parse()

	logger := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	if *csvPath == "" {
		log.Fatal("-csv is required")
	}
	r, err := models.ParseRetailer(*retailer)
	if err != nil {
		log.Fatalf("Invalid -type: %v", err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV: %v", err)
	}
	defer f.Close()

	added, err := input.ImportCSV(f, *column, r, *limit)
	if err != nil {
		logger.Error("failed to import csv", "path", *csvPath, "error", err)
		os.Exit(1)
	}

	var existing []models.SkuTask
	if _, err := os.Stat(*output); err == nil {
		if existing, err = input.Load(*output); err != nil {
			logger.Error("failed to load existing SKU list", "path", *output, "error", err)
			os.Exit(1)
		}
	}

	merged, n := input.Merge(existing, added)
	if err := input.Save(*output, merged); err != nil {
		logger.Error("failed to save SKU list", "path", *output, "error", err)
		os.Exit(1)
	}

	logger.Info("import complete", "read", len(added), "added", n, "total", len(merged), "output", *output)
}
