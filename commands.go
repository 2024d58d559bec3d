package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"jssprz/pricewatcher/internal/catalog"
)

const usage = `usage:
  pricewatcher                                     run the refresher (and the API when API_ADDR is set)
  pricewatcher scrape <variantId> <url>            scrape one storefront URL and record the price
  pricewatcher refresh                             re-scrape every tracked pair once
  pricewatcher add-store <id> <name> <baseURL> [currency]
  pricewatcher add-variant <id> [name]`

// runCommand executes a one-shot subcommand and writes its JSON output to out
func runCommand(ctx context.Context, services *Services, args []string, out io.Writer) error {
	switch args[0] {
	case "scrape":
		if len(args) != 3 {
			return fmt.Errorf("scrape takes <variantId> <url>\n%s", usage)
		}
		result, err := services.Service.ScrapeAndInsertExternalPrice(ctx, args[1], args[2])
		if result != nil {
			if encErr := writeJSON(out, result); encErr != nil {
				return encErr
			}
		}
		return err

	case "refresh":
		summary := services.Refresher.RunOnce(ctx)
		return writeJSON(out, summary)

	case "add-store":
		if len(args) < 4 || len(args) > 5 {
			return fmt.Errorf("add-store takes <id> <name> <baseURL> [currency]\n%s", usage)
		}
		hostname, err := catalog.HostnameOf(args[3])
		if err != nil {
			return err
		}
		store := catalog.Store{ID: args[1], Name: args[2], BaseURL: strings.TrimRight(args[3], "/"), Hostname: hostname}
		if len(args) == 5 {
			store.Currency = strings.ToUpper(args[4])
		}
		if err := services.Repository.UpsertStore(ctx, store); err != nil {
			return err
		}
		return writeJSON(out, store)

	case "add-variant":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("add-variant takes <id> [name]\n%s", usage)
		}
		variant := catalog.Variant{ID: args[1]}
		if len(args) == 3 {
			variant.Name = args[2]
		}
		if err := services.Repository.UpsertVariant(ctx, variant); err != nil {
			return err
		}
		return writeJSON(out, variant)

	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
