package browser

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeDriver is a scriptable in-memory Driver for tests. Navigation
// outcomes are keyed by URL, selector lookups by selector, and all
// resource opens and closes are counted so tests can assert leak-free
// teardown.
type FakeDriver struct {
	mu sync.Mutex

	LaunchErr     error
	NewContextErr error
	ExportErr     error
	// ExportState is returned by every ExportStorageState call.
	ExportState []byte

	// Redirects maps a requested URL to the URL the page lands on,
	// simulating a login redirect. Unlisted URLs land on themselves.
	Redirects map[string]string
	// Titles maps a landed URL to the page title.
	Titles map[string]string
	// NavErrs maps a requested URL to a navigation failure.
	NavErrs map[string]error
	// MissingSelectors lists selectors WaitForSelector times out on.
	MissingSelectors map[string]bool
	ClickErrs        map[string]error

	// NavStarted, when non-nil, receives each requested URL as the
	// navigation begins. NavRelease, when non-nil, blocks every
	// navigation until the channel is closed. Together they let tests
	// hold a run mid-flight.
	NavStarted chan string
	NavRelease chan struct{}

	// ExportStarted and ExportRelease gate ExportStorageState the same
	// way, holding a confirm mid-export.
	ExportStarted chan struct{}
	ExportRelease chan struct{}

	launches        int
	instancesClosed int
	contexts        int
	contextsClosed  int
	pages           int
	pagesClosed     int

	// LastStorageState records the blob passed to the most recent
	// NewContext call.
	LastStorageState []byte
	Filled           map[string]string
	Visited          []string
	Screenshots      []string
}

func (d *FakeDriver) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	d.launches++
	return &fakeInstance{driver: d}, nil
}

func (d *FakeDriver) Close() error { return nil }

// OpenResources returns the number of instances, contexts and pages that
// have been opened but not yet closed.
func (d *FakeDriver) OpenResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (d.launches - d.instancesClosed) +
		(d.contexts - d.contextsClosed) +
		(d.pages - d.pagesClosed)
}

// Launches returns how many browser instances have been launched.
func (d *FakeDriver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

type fakeInstance struct {
	driver *FakeDriver
	closed bool
}

func (i *fakeInstance) NewContext(storageState []byte) (Context, error) {
	d := i.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NewContextErr != nil {
		return nil, d.NewContextErr
	}
	d.LastStorageState = storageState
	d.contexts++
	return &fakeContext{driver: d}, nil
}

func (i *fakeInstance) Close() error {
	d := i.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if !i.closed {
		i.closed = true
		d.instancesClosed++
	}
	return nil
}

type fakeContext struct {
	driver *FakeDriver
	closed bool
}

func (c *fakeContext) NewPage() (Page, error) {
	d := c.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages++
	return &fakePage{driver: d, url: "about:blank"}, nil
}

func (c *fakeContext) ExportStorageState() ([]byte, error) {
	d := c.driver

	d.mu.Lock()
	started := d.ExportStarted
	release := d.ExportRelease
	d.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ExportErr != nil {
		return nil, d.ExportErr
	}
	if d.ExportState != nil {
		return d.ExportState, nil
	}
	return []byte(`{"cookies":[],"origins":[]}`), nil
}

func (c *fakeContext) Close() error {
	d := c.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if !c.closed {
		c.closed = true
		d.contextsClosed++
	}
	return nil
}

type fakePage struct {
	driver *FakeDriver
	url    string
	closed bool
}

func (p *fakePage) Goto(url string, timeout time.Duration) error {
	d := p.driver

	d.mu.Lock()
	started := d.NavStarted
	release := d.NavRelease
	d.mu.Unlock()

	if started != nil {
		started <- url
	}
	if release != nil {
		<-release
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Visited = append(d.Visited, url)
	if err, ok := d.NavErrs[url]; ok {
		return err
	}
	if landed, ok := d.Redirects[url]; ok {
		p.url = landed
	} else {
		p.url = url
	}
	return nil
}

func (p *fakePage) Title() (string, error) {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if title, ok := d.Titles[p.url]; ok {
		return title, nil
	}
	return "", nil
}

func (p *fakePage) URL() string {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	return p.url
}

func (p *fakePage) Click(selector string, timeout time.Duration) error {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.ClickErrs[selector]; ok {
		return err
	}
	return nil
}

func (p *fakePage) Fill(selector, value string, timeout time.Duration) error {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Filled == nil {
		d.Filled = make(map[string]string)
	}
	d.Filled[selector] = value
	return nil
}

func (p *fakePage) WaitForSelector(selector string, timeout time.Duration) error {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MissingSelectors[selector] {
		return fmt.Errorf("browser: wait for %s: timeout %s exceeded", selector, timeout)
	}
	return nil
}

func (p *fakePage) Screenshot(path string) error {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Screenshots = append(d.Screenshots, path)
	return nil
}

func (p *fakePage) Close() error {
	d := p.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if !p.closed {
		p.closed = true
		d.pagesClosed++
	}
	return nil
}
