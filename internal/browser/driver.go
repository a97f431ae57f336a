// Package browser defines the browser-automation capability the engine
// consumes, plus the Playwright-backed implementation of it. The rest of
// the system depends only on these interfaces, never on a particular
// automation engine's types.
package browser

import (
	"context"
	"time"
)

// LaunchOptions configures a browser instance launch.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible
	// window. Onboarding launches headed so the user can log in.
	Headless bool
}

// Driver launches browser instances and owns the underlying automation
// runtime. Close stops the runtime; no instance may be launched after.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Instance, error)
	Close() error
}

// Instance is one running browser process.
type Instance interface {
	// NewContext opens an isolated browsing context. storageState, when
	// non-nil, is an opaque blob previously produced by
	// Context.ExportStorageState and restores cookies and origin data.
	NewContext(storageState []byte) (Context, error)
	Close() error
}

// Context is an isolated browsing context within an instance.
type Context interface {
	NewPage() (Page, error)
	// ExportStorageState serializes the context's cookies and
	// origin-scoped storage into an opaque blob.
	ExportStorageState() ([]byte, error)
	Close() error
}

// Page exposes the navigation and DOM primitives the engine needs. Every
// blocking operation carries an explicit timeout.
type Page interface {
	Goto(url string, timeout time.Duration) error
	Title() (string, error)
	URL() string
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	WaitForSelector(selector string, timeout time.Duration) error
	Screenshot(path string) error
	Close() error
}
