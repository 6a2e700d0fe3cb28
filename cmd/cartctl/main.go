// cartctl is a CLI tool for driving the cart engine against a real backend.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl show [-token TOK]
//	cartctl add -product ID [-title NAME] [-price P] [-qty N] [-token TOK]
//	cartctl remove -product ID [-token TOK]
//	cartctl update -product ID -qty N [-token TOK]
//	cartctl clear [-token TOK]
//	cartctl merge -token TOK
//
// Without a token, commands operate on the locally persisted guest cart
// only. With a token, mutations sync to the backend and the command waits
// for the sync to settle before exiting.
//
// Examples:
//
//	cartctl add -product 60 -price 12.99 -title "Budget Planner"
//	cartctl update -product 60 -qty 3
//	cartctl merge -token "$TOKEN"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sheetcart/internal/auth"
	"sheetcart/internal/cart"
	"sheetcart/internal/config"
	"sheetcart/internal/localstore"
	"sheetcart/internal/remote"
)

// settleTimeout bounds how long a command waits for background sync.
const settleTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "show":
		err = runShow(args)
	case "add":
		err = runAdd(args)
	case "remove":
		err = runRemove(args)
	case "update":
		err = runUpdate(args)
	case "clear":
		err = runClear(args)
	case "merge":
		err = runMerge(args)
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - cart engine command line tool

Usage:
  cartctl <command> [options]

Commands:
  show      Print the current cart
  add       Add a product (or bump its quantity by one)
  remove    Remove a product
  update    Set a product's quantity
  clear     Empty the cart locally and on the backend
  merge     Fold the local guest cart into the account cart

Configuration comes from the environment or CONFIG_FILE; see
internal/config. A -token flag (or BACKEND_API_TOKEN) makes the
session authenticated so mutations sync to the backend.

Examples:
  cartctl add -product 60 -price 12.99 -title "Budget Planner"
  cartctl update -product 60 -qty 3
  cartctl remove -product 60
  cartctl merge -token "$TOKEN"

Run 'cartctl <command> -h' for command-specific options.
`)
}

// session bundles everything a command needs.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  localstore.Store
	svc    *cart.Service
	token  string
}

// newSession loads config, opens the local store, builds the remote client
// and the engine, and feeds it the initial auth snapshot.
func newSession(tokenFlag string) (*session, error) {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)

	store, err := localstore.NewSQLite(cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	client, err := remote.New(remote.Config{
		BaseURL:    cfg.Backend.BaseURL,
		BrowserTLS: cfg.Backend.BrowserTLS,
		Timeout:    cfg.Timeout(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating backend client: %w", err)
	}

	token := tokenFlag
	if token == "" {
		token = cfg.Backend.APIToken
	}

	svc, err := cart.New(cart.Options{
		Store:    store,
		Remote:   client,
		Logger:   logger,
		Debounce: cfg.Debounce(),
		FallbackTokens: auth.Fallback{
			Primary: auth.Static(token),
			Store:   store,
		},
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating cart engine: %w", err)
	}

	s := &session{cfg: cfg, logger: logger, store: store, svc: svc, token: token}

	if token != "" {
		svc.SetAuth(auth.Snapshot{Authenticated: true, Token: token})
		if err := s.waitForState(cart.StateAuthSynced); err != nil {
			store.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing local store", slog.Any("error", err))
	}
}

// waitForState polls until the engine reaches the wanted lifecycle state.
func (s *session) waitForState(want cart.State) error {
	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		if s.svc.State() == want {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for state %s (stuck at %s)", want, s.svc.State())
}

// settle waits for all scheduled remote operations to finish.
func (s *session) settle() error {
	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		if s.svc.Pending() == 0 {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %d pending operations", s.svc.Pending())
}

func (s *session) printCart() {
	items := s.svc.Items()
	if len(items) == 0 {
		fmt.Println("cart is empty")
		return
	}

	fmt.Printf("%-12s %-30s %5s %10s %10s\n", "ID", "TITLE", "QTY", "PRICE", "SUBTOTAL")
	for _, item := range items {
		title := item.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}
		fmt.Printf("%-12s %-30s %5d %10s %10s\n",
			item.ID, title, item.Quantity,
			item.Price.StringFixed(2), item.Subtotal().StringFixed(2))
	}
	fmt.Printf("\n%d items, total %s (%s)\n",
		s.svc.ItemCount(), s.svc.Subtotal().StringFixed(2), s.svc.State())
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token for an authenticated session")
	fs.Parse(args)

	s, err := newSession(*token)
	if err != nil {
		return err
	}
	defer s.close()

	s.printCart()
	return nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	product := fs.String("product", "", "Product id (required)")
	title := fs.String("title", "", "Product title")
	price := fs.String("price", "0", "Unit price")
	qty := fs.Int("qty", 1, "Quantity to add")
	token := fs.String("token", "", "Bearer token for an authenticated session")
	fs.Parse(args)

	if *product == "" {
		return fmt.Errorf("-product is required")
	}
	if *qty < 1 {
		return fmt.Errorf("-qty must be at least 1")
	}

	s, err := newSession(*token)
	if err != nil {
		return err
	}
	defer s.close()

	for range *qty {
		s.svc.AddToCart(cart.Product{ID: *product, Title: *title, Price: *price})
	}
	if err := s.settle(); err != nil {
		return err
	}

	s.printCart()
	return nil
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	product := fs.String("product", "", "Product id (required)")
	token := fs.String("token", "", "Bearer token for an authenticated session")
	fs.Parse(args)

	if *product == "" {
		return fmt.Errorf("-product is required")
	}

	s, err := newSession(*token)
	if err != nil {
		return err
	}
	defer s.close()

	s.svc.RemoveFromCart(*product)
	if err := s.settle(); err != nil {
		return err
	}

	s.printCart()
	return nil
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	product := fs.String("product", "", "Product id (required)")
	qty := fs.Int("qty", -1, "New quantity (required; 0 removes)")
	token := fs.String("token", "", "Bearer token for an authenticated session")
	fs.Parse(args)

	if *product == "" {
		return fmt.Errorf("-product is required")
	}
	if *qty < 0 {
		return fmt.Errorf("-qty is required")
	}

	s, err := newSession(*token)
	if err != nil {
		return err
	}
	defer s.close()

	s.svc.UpdateQuantity(*product, *qty)

	// Outlast the debounce window so the remote call actually fires.
	time.Sleep(s.cfg.Debounce())
	if err := s.settle(); err != nil {
		return err
	}

	s.printCart()
	return nil
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token for an authenticated session")
	fs.Parse(args)

	s, err := newSession(*token)
	if err != nil {
		return err
	}
	defer s.close()

	s.svc.ClearCart()

	// The remote clear is best-effort on its own goroutine; give it a
	// moment but never fail the command over it.
	time.Sleep(500 * time.Millisecond)

	s.printCart()
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token (required)")
	fs.Parse(args)

	if *token == "" {
		return fmt.Errorf("-token is required: merging needs an authenticated session")
	}

	// newSession already runs the login transition, which merges a
	// populated guest cart into the account cart.
	s, err := newSession(*token)
	if err != nil {
		return err
	}
	defer s.close()

	s.printCart()
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
