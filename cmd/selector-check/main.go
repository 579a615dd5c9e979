package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/ratelimit"
	"github.com/maltedev/price-tracker/internal/scraper"
	"github.com/maltedev/price-tracker/pkg/logger"
)

// selector-check runs the extraction rules against a saved product page, so
// selector changes can be verified without touching the retailer.
func main() {
	var (
		file = flag.String("file", "", "Saved HTML page to check")
		site = flag.String("site", "Amazon", "Retailer rules to apply: Amazon or Walmart")
		url  = flag.String("url", "file://saved-page", "URL to report in the result")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := logger.New("warn", "text")

	rules, ok := scraper.RulesFor(models.ParseSite(*site))
	if !ok {
		log.Fatalf("Unsupported site: %s", *site)
	}

	html, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}

	page, err := browser.NewHTMLPage(string(html))
	if err != nil {
		log.Fatalf("Failed to parse HTML: %v", err)
	}

	s := scraper.New(rules, scraper.Options{
		Launcher: scraper.StaticLauncher(page),
		Delay:    ratelimit.NewHumanDelay(0, 0, nil),
		Logger:   logger,
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer s.Close()

	result := s.GetPrice(ctx, *url)
	if !result.Success {
		fmt.Printf("FAIL %s: %s", rules.Site, result.Error)
		if result.Title != "" {
			fmt.Printf(" (title: %s)", result.Title)
		}
		fmt.Println()
		os.Exit(1)
	}

	fmt.Printf("OK %s: %s%.2f %s\n", rules.Site, result.Currency, result.PriceValue(), result.Title)
}
