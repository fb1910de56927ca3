// Command probe opens a retailer page and reports which known page targets are
// present, to spot selector drift before a flow fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"grocery-cli/adapters"
	"grocery-cli/flows"
	"grocery-cli/internal/app"
	"grocery-cli/internal/session"
	"grocery-cli/internal/types"
	"grocery-cli/utils"
)

type check struct {
	name   string
	target types.Target
}

func main() {
	var (
		providerFlag = flag.String("provider", "sainsburys", "Provider whose site profile is probed")
		pageFlag     = flag.String("page", "login", "Page to probe: login, basket or slots")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	a, err := app.New(app.Options{Verbose: *verbose})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer a.Close()

	profiles := adapters.Profiles(a.Config)
	profile, ok := profiles[*providerFlag]
	if !ok {
		names := make([]string, 0, len(profiles))
		for name := range profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		log.Fatalf("No site profile for %s. Available: %s", *providerFlag, strings.Join(names, ", "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := probe(ctx, a, profile, *pageFlag); err != nil {
		log.Printf("Probe failed: %v", err)
		a.Close()
		os.Exit(1)
	}
}

func probe(ctx context.Context, a *app.App, profile *flows.SiteProfile, pageName string) error {
	var target string
	var checks []check
	switch pageName {
	case "login":
		target = profile.LoginURL
		checks = []check{
			{"consent", profile.Consent},
			{"email", profile.Email},
			{"password", profile.Password},
			{"submit", profile.Submit},
			{"login error", profile.LoginError},
			{"mfa field", profile.MFAField},
		}
	case "basket":
		target = profile.BasketURL
		checks = append(checks, check{"consent", profile.Consent}, check{"signed in", profile.LoggedIn})
		for i, t := range profile.CheckoutButtons {
			checks = append(checks, check{fmt.Sprintf("checkout button %d", i+1), t})
		}
	case "slots":
		target = profile.SlotsURL
		checks = append(checks, check{"consent", profile.Consent})
		for i, t := range profile.SlotRequired {
			checks = append(checks, check{fmt.Sprintf("slot prompt %d", i+1), t})
		}
	default:
		return fmt.Errorf("unknown page %q", pageName)
	}

	page, err := utils.NewBrowserClient(a.Config, a.Logger).Launch(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	// Logged-in pages need the saved session
	store := session.NewStore(session.Path(a.Config.SessionDir, profile.Provider), a.Logger)
	if data, err := store.Load(); err == nil && data != nil {
		if err := page.SetCookies(ctx, data.Cookies); err != nil {
			a.Logger.Warnf("Failed to apply session cookies: %v", err)
		}
	} else if pageName != "login" {
		a.Logger.Warnf("No saved session for %s, the page may redirect to login", profile.Provider)
	}

	fmt.Printf("=== Probing %s %s page ===\n", profile.Provider, pageName)
	if err := page.Navigate(ctx, target); err != nil {
		return err
	}

	// Let client-side rendering settle
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
	}

	current, _ := page.URL(ctx)
	fmt.Printf("URL: %s\n", current)

	for _, c := range checks {
		found, err := page.Exists(ctx, c.target)
		status := "missing"
		switch {
		case err != nil:
			status = "error: " + err.Error()
		case found:
			status = "found"
		}
		fmt.Printf("  %-20s %-8s %s\n", c.name, status, c.target)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	fmt.Printf("Total links found: %d\n", doc.Find("a").Length())
	fmt.Printf("Forms found: %d\n", doc.Find("form").Length())
	if pageName == "slots" {
		fmt.Printf("Slot elements (%s): %d\n", profile.SlotElements, doc.Find(profile.SlotElements).Length())
	}
	return nil
}
