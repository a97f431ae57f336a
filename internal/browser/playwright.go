package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Matches the original service's automation profile.
const (
	viewportWidth  = 1920
	viewportHeight = 1080
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
}

// PlaywrightDriver implements Driver on top of Playwright-managed
// Chromium. The Playwright runtime is started lazily on first launch and
// shared by all instances.
type PlaywrightDriver struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightDriver creates an unstarted driver. The runtime (and, if
// missing, the browser binaries) are installed on first Launch.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

func (d *PlaywrightDriver) runtime() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw != nil {
		return d.pw, nil
	}

	// Discard install output so it cannot interleave with service logs.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("browser: install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("browser: start playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

// Launch starts a Chromium instance.
func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.runtime()
	if err != nil {
		return nil, err
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: launch chromium: %w", err)
	}
	return &pwInstance{browser: b}, nil
}

// Close stops the Playwright runtime.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	if err != nil {
		return fmt.Errorf("browser: stop playwright: %w", err)
	}
	return nil
}

type pwInstance struct {
	browser playwright.Browser
}

func (i *pwInstance) NewContext(storageState []byte) (Context, error) {
	opts := playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: viewportWidth, Height: viewportHeight},
		UserAgent: playwright.String(userAgent),
	}
	if len(storageState) > 0 {
		var state playwright.OptionalStorageState
		if err := json.Unmarshal(storageState, &state); err != nil {
			return nil, fmt.Errorf("browser: decode storage state: %w", err)
		}
		opts.StorageState = &state
	}

	c, err := i.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("browser: create context: %w", err)
	}
	return &pwContext{context: c}, nil
}

func (i *pwInstance) Close() error {
	return i.browser.Close()
}

type pwContext struct {
	context playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) ExportStorageState() ([]byte, error) {
	state, err := c.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("browser: export storage state: %w", err)
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("browser: encode storage state: %w", err)
	}
	return b, nil
}

func (c *pwContext) Close() error {
	return c.context.Close()
}

type pwPage struct {
	page playwright.Page
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("browser: goto %s: %w", url, err)
	}
	return nil
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	if err := p.page.Click(selector, playwright.PageClickOptions{Timeout: ms(timeout)}); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

func (p *pwPage) Fill(selector, value string, timeout time.Duration) error {
	if err := p.page.Fill(selector, value, playwright.PageFillOptions{Timeout: ms(timeout)}); err != nil {
		return fmt.Errorf("browser: fill %s: %w", selector, err)
	}
	return nil
}

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: ms(timeout),
		State:   playwright.WaitForSelectorStateVisible,
	})
	if err != nil {
		return fmt.Errorf("browser: wait for %s: %w", selector, err)
	}
	return nil
}

func (p *pwPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	return nil
}

func (p *pwPage) Close() error {
	return p.page.Close()
}
