// Package action implements the platform operations an automation run
// can perform. Each run performs exactly one action in one working
// browser context.
package action

import (
	"context"
	"fmt"
	"time"

	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/platform"
)

// Options carries the timeouts actions apply to navigation and
// individual DOM steps.
type Options struct {
	NavTimeout  time.Duration
	StepTimeout time.Duration
}

// Action is a single platform operation performed on an authenticated
// page. On success it returns a platform-specific receipt.
type Action interface {
	Name() string
	Perform(ctx context.Context, page browser.Page, plat platform.Platform, opts Options) (map[string]string, error)
}

// New builds an action from its wire name and parameters.
func New(name string, params map[string]string) (Action, error) {
	switch name {
	case "publish_post":
		text := params["text"]
		if text == "" {
			return nil, fmt.Errorf("action: publish_post requires a non-empty \"text\" param")
		}
		return &PublishPost{Text: text}, nil
	case "profile_check":
		return &ProfileCheck{URL: params["url"]}, nil
	case "screenshot":
		return &Screenshot{Path: params["path"]}, nil
	default:
		return nil, fmt.Errorf("action: unknown action %q", name)
	}
}

// PublishPost publishes a text post through the platform's composer.
type PublishPost struct {
	Text string
}

func (a *PublishPost) Name() string { return "publish_post" }

func (a *PublishPost) Perform(ctx context.Context, page browser.Page, plat platform.Platform, opts Options) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if plat.ComposeURL == "" || plat.ComposeBox == "" || plat.ComposeSubmit == "" {
		return nil, fmt.Errorf("action: platform %s has no composer configured", plat.Name)
	}

	if err := page.Goto(plat.ComposeURL, opts.NavTimeout); err != nil {
		return nil, err
	}
	if err := page.WaitForSelector(plat.ComposeBox, opts.StepTimeout); err != nil {
		return nil, err
	}
	if err := page.Fill(plat.ComposeBox, a.Text, opts.StepTimeout); err != nil {
		return nil, err
	}
	if err := page.Click(plat.ComposeSubmit, opts.StepTimeout); err != nil {
		return nil, err
	}

	receipt := map[string]string{
		"action":   a.Name(),
		"postedAt": time.Now().UTC().Format(time.RFC3339),
		"url":      page.URL(),
	}
	return receipt, nil
}

// ProfileCheck navigates to an authenticated page and reports what it
// found. Useful as a cheap end-to-end liveness action.
type ProfileCheck struct {
	// URL overrides the platform's probe URL.
	URL string
}

func (a *ProfileCheck) Name() string { return "profile_check" }

func (a *ProfileCheck) Perform(ctx context.Context, page browser.Page, plat platform.Platform, opts Options) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := a.URL
	if url == "" {
		url = plat.ProbeURL
	}

	if err := page.Goto(url, opts.NavTimeout); err != nil {
		return nil, err
	}
	title, err := page.Title()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"action": a.Name(),
		"title":  title,
		"url":    page.URL(),
	}, nil
}

// Screenshot captures the platform's probe page as a PNG.
type Screenshot struct {
	Path string
}

func (a *Screenshot) Name() string { return "screenshot" }

func (a *Screenshot) Perform(ctx context.Context, page browser.Page, plat platform.Platform, opts Options) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := a.Path
	if path == "" {
		path = fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	}

	if err := page.Goto(plat.ProbeURL, opts.NavTimeout); err != nil {
		return nil, err
	}
	if err := page.Screenshot(path); err != nil {
		return nil, err
	}

	return map[string]string{
		"action": a.Name(),
		"path":   path,
		"url":    page.URL(),
	}, nil
}
