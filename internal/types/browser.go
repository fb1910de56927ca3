package types

import (
	"context"
	"fmt"
)

// Target addresses an element on a page: a CSS selector, optionally narrowed
// to elements whose visible text contains Text.
type Target struct {
	CSS  string
	Text string
}

func (t Target) String() string {
	if t.Text == "" {
		return t.CSS
	}
	return fmt.Sprintf("%s[text~=%q]", t.CSS, t.Text)
}

// IsZero reports whether the target is unset
func (t Target) IsZero() bool {
	return t.CSS == ""
}

// Page is a driven browser page. Flows only interact through visible elements.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Exists(ctx context.Context, target Target) (bool, error)
	Fill(ctx context.Context, target Target, value string) error
	Click(ctx context.Context, target Target) error
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error

	// Close shuts the page and its browser process down
	Close() error
}

// Browser launches pages. Cancelling the launch context kills the browser.
type Browser interface {
	Launch(ctx context.Context) (Page, error)
}
