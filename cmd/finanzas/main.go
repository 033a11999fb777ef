// Finanzas CLI - budget baseline tooling
//
// Usage:
//
//	finanzas taxonomy list [--output json]
//	finanzas taxonomy validate --file taxonomy.json
//	finanzas resolve <id>
//	finanzas materialize --project P-001 --baseline base_A --estimates lines.json
//	finanzas rubros --project P-001 [--baseline base_A]
//	finanzas forecast --project P-001 --months 12
//	finanzas grid --estimates lines.json --months 12
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"finanzas-sd/db"
	"finanzas-sd/db/dynamo"
	"finanzas-sd/db/memory"
	"finanzas-sd/internal/forecast"
	"finanzas-sd/internal/materialize"
	"finanzas-sd/internal/query"
	"finanzas-sd/internal/taxonomy"
	"finanzas-sd/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "finanzas",
		Usage:   "Finanzas SD - baseline materialization and forecast tooling",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"FINANZAS_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "taxonomy-file",
				Usage:   "Taxonomy JSON file (default: bundled catalog)",
				EnvVars: []string{"TAXONOMY_FILE"},
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   "memory",
				Usage:   "Backing store (memory, dynamo)",
				EnvVars: []string{"STORE"},
			},
			&cli.StringFlag{
				Name:    "dynamo-table",
				Value:   "finanzas-sd",
				Usage:   "DynamoDB table name",
				EnvVars: []string{"DYNAMO_TABLE"},
			},
			&cli.StringFlag{
				Name:    "dynamo-endpoint",
				Usage:   "DynamoDB endpoint override (dynamodb-local)",
				EnvVars: []string{"DYNAMO_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "default-code",
				Value:   "OTR-VARIOS",
				Usage:   "Fallback canonical code for unresolvable identifiers",
				EnvVars: []string{"DEFAULT_CANONICAL_CODE"},
			},
		},

		Commands: []*cli.Command{
			taxonomyCommand(),
			resolveCommand(),
			materializeCommand(),
			rubrosCommand(),
			forecastCommand(),
			gridCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cliLogger(c *cli.Context) zerolog.Logger {
	return platform.InitLogger("development", c.String("log-level"))
}

func loadCatalog(c *cli.Context) (*taxonomy.Catalog, error) {
	if path := c.String("taxonomy-file"); path != "" {
		return taxonomy.FileLoader(path).Load(c.Context)
	}
	return taxonomy.Bundled()
}

func buildStore(ctx context.Context, c *cli.Context) (db.Store, error) {
	if c.String("store") == "dynamo" {
		return dynamo.NewStore(ctx, dynamo.Config{
			Table:    c.String("dynamo-table"),
			Endpoint: c.String("dynamo-endpoint"),
		})
	}
	return memory.NewStore(), nil
}

func taxonomyCommand() *cli.Command {
	return &cli.Command{
		Name:  "taxonomy",
		Usage: "Inspect and validate the canonical cost taxonomy",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List canonical codes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Value: "text", Usage: "Output format (text, json)"},
				},
				Action: func(c *cli.Context) error {
					catalog, err := loadCatalog(c)
					if err != nil {
						return err
					}
					if c.String("output") == "json" {
						return printJSON(catalog.Entries())
					}
					for _, e := range catalog.Entries() {
						fmt.Printf("%-18s %-5s %-10s %-6s %s\n",
							e.Code, e.CategoryCode, e.ExecutionType, e.CostType, e.Name)
					}
					fmt.Printf("\n%d codes in %d categories (version %s)\n",
						catalog.Len(), len(catalog.Categories()), catalog.Version())
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Validate a taxonomy document",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "Taxonomy JSON file"},
				},
				Action: func(c *cli.Context) error {
					catalog, err := taxonomy.FileLoader(c.String("file")).Load(c.Context)
					if err != nil {
						return fmt.Errorf("taxonomy invalid: %w", err)
					}
					fmt.Printf("OK: %d codes, %d categories, version %s\n",
						catalog.Len(), len(catalog.Categories()), catalog.Version())
					return nil
				},
			},
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve an identifier to its canonical taxonomy code",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one identifier")
			}
			catalog, err := loadCatalog(c)
			if err != nil {
				return err
			}
			canonical, err := catalog.ResolveCanonical(c.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(canonical)
			return nil
		},
	}
}

func materializeCommand() *cli.Command {
	return &cli.Command{
		Name:  "materialize",
		Usage: "Materialize an accepted baseline from an estimates file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Required: true},
			&cli.StringFlag{Name: "baseline", Required: true},
			&cli.StringFlag{Name: "estimates", Required: true, Usage: "Estimate lines JSON file"},
		},
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)
			catalog, err := loadCatalog(c)
			if err != nil {
				return err
			}
			store, err := buildStore(c.Context, c)
			if err != nil {
				return err
			}
			lines, err := readEstimates(c.String("estimates"))
			if err != nil {
				return err
			}

			engine := materialize.NewEngine(store, catalog, materialize.Config{
				DefaultCanonicalCode: c.String("default-code"),
			}, logger)
			result, err := engine.Materialize(c.Context, c.String("project"), materialize.Baseline{
				BaselineID: c.String("baseline"),
				ProjectID:  c.String("project"),
				Lines:      lines,
			})
			if err != nil {
				return err
			}
			if result.Skipped {
				fmt.Println("baseline already materialized, nothing written")
				return nil
			}
			fmt.Printf("materialized %d rubros (%d lines skipped, %d fallbacks)\n",
				len(result.Rubros), result.LinesSkipped, result.FallbackCount)
			return nil
		},
	}
}

func rubrosCommand() *cli.Command {
	return &cli.Command{
		Name:  "rubros",
		Usage: "List a project's rubros scoped to a baseline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Required: true},
			&cli.StringFlag{Name: "baseline", Usage: "Explicit baseline (default: project's active baseline)"},
		},
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)
			store, err := buildStore(c.Context, c)
			if err != nil {
				return err
			}
			svc := query.NewService(store, logger)
			rubros, err := svc.ProjectRubros(c.Context, c.String("project"), c.String("baseline"))
			if err != nil {
				return err
			}
			for _, r := range rubros {
				fmt.Printf("%-30s %-14s qty=%s unit=%s total=%s %s\n",
					r.RubroID, r.CanonicalCode, r.Quantity.String(),
					r.UnitCost.StringFixed(2), r.TotalCost.StringFixed(2), r.Currency)
			}
			fmt.Printf("\n%d rubros\n", len(rubros))
			return nil
		},
	}
}

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Print the forecast grid for a project baseline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Required: true},
			&cli.StringFlag{Name: "baseline"},
			&cli.IntFlag{Name: "months", Value: 12},
			&cli.StringFlag{Name: "output", Value: "text", Usage: "Output format (text, json)"},
		},
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)
			store, err := buildStore(c.Context, c)
			if err != nil {
				return err
			}
			svc := query.NewService(store, logger)
			rubros, err := svc.ProjectRubros(c.Context, c.String("project"), c.String("baseline"))
			if err != nil {
				return err
			}
			return printGrid(forecast.Grid(rubros, c.Int("months")), c.String("output"))
		},
	}
}

// gridCommand computes a forecast grid straight from an estimates file without
// touching any persistent store. Useful for what-if runs during planning.
func gridCommand() *cli.Command {
	return &cli.Command{
		Name:  "grid",
		Usage: "Compute a forecast grid offline from an estimates file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "estimates", Required: true, Usage: "Estimate lines JSON file"},
			&cli.IntFlag{Name: "months", Value: 12},
			&cli.StringFlag{Name: "output", Value: "text", Usage: "Output format (text, json)"},
		},
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)
			catalog, err := loadCatalog(c)
			if err != nil {
				return err
			}
			lines, err := readEstimates(c.String("estimates"))
			if err != nil {
				return err
			}

			store := memory.NewStore()
			engine := materialize.NewEngine(store, catalog, materialize.Config{
				DefaultCanonicalCode: c.String("default-code"),
			}, logger)
			result, err := engine.Materialize(c.Context, "offline", materialize.Baseline{
				BaselineID: "draft",
				ProjectID:  "offline",
				Lines:      lines,
			})
			if err != nil {
				return err
			}
			return printGrid(forecast.Grid(result.Rubros, c.Int("months")), c.String("output"))
		},
	}
}

type estimateFileLine struct {
	RawID       string `json:"raw_id"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitCost    string `json:"unit_cost"`
	Currency    string `json:"currency"`
	Recurring   bool   `json:"recurring"`
	StartMonth  int    `json:"start_month"`
	EndMonth    int    `json:"end_month"`
}

func readEstimates(path string) ([]materialize.EstimateLine, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read estimates file: %w", err)
	}
	var raw []estimateFileLine
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("parse estimates file: %w", err)
	}

	lines := make([]materialize.EstimateLine, len(raw))
	for i, l := range raw {
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return nil, fmt.Errorf("line %d: malformed quantity %q", i, l.Quantity)
		}
		cost, err := decimal.NewFromString(l.UnitCost)
		if err != nil {
			return nil, fmt.Errorf("line %d: malformed unit cost %q", i, l.UnitCost)
		}
		lines[i] = materialize.EstimateLine{
			RawID:       l.RawID,
			Description: l.Description,
			Quantity:    qty,
			UnitCost:    cost,
			Currency:    l.Currency,
			Recurring:   l.Recurring,
			StartMonth:  l.StartMonth,
			EndMonth:    l.EndMonth,
		}
	}
	return lines, nil
}

func printGrid(cells []forecast.Cell, output string) error {
	if output == "json" {
		return printJSON(cells)
	}
	total := decimal.Zero
	for _, c := range cells {
		fmt.Printf("%-30s month=%2d planned=%s forecast=%s actual=%s\n",
			c.LineItemID, c.Month,
			c.Planned.StringFixed(2), c.Forecast.StringFixed(2), c.Actual.StringFixed(2))
		total = total.Add(c.Planned)
	}
	fmt.Printf("\n%d cells, total planned %s\n", len(cells), total.StringFixed(2))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
