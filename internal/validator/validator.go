// Package validator decides whether a persisted session artifact is
// still accepted by its target platform. Validation is read-only: it
// never mutates the artifact or writes to the store.
package validator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/platform"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

// Verdict is the outcome of one validation probe.
type Verdict struct {
	Valid bool
	// Reason is set when Valid is false: SessionExpired when the
	// platform rejected the session, ProbeFailed when no verdict could
	// be reached. ProbeFailed fails closed and is never reported Valid.
	Reason models.FailureReason
}

func invalid(reason models.FailureReason) Verdict {
	return Verdict{Valid: false, Reason: reason}
}

// Validator probes artifacts against their platforms using disposable,
// short-lived browser instances.
type Validator struct {
	driver       browser.Driver
	probeTimeout time.Duration
	headless     bool
}

// New creates a validator using the given driver.
func New(driver browser.Driver, probeTimeout time.Duration, headless bool) *Validator {
	return &Validator{driver: driver, probeTimeout: probeTimeout, headless: headless}
}

// Validate restores the artifact into a fresh browser, navigates to the
// platform's probe URL and inspects the result. The browser is torn down
// on every exit path. Navigation failures and timeouts yield
// Invalid(ProbeFailed), never a Valid verdict.
func (v *Validator) Validate(ctx context.Context, artifact *models.SessionArtifact) Verdict {
	plat, err := platform.Lookup(artifact.Platform)
	if err != nil {
		log.Printf("[validator] %s: %v", artifact.UserID, err)
		return invalid(models.ReasonProbeFailed)
	}

	inst, err := v.driver.Launch(ctx, browser.LaunchOptions{Headless: v.headless})
	if err != nil {
		log.Printf("[validator] %s: launch failed: %v", artifact.UserID, err)
		return invalid(models.ReasonProbeFailed)
	}
	defer inst.Close()

	bctx, err := inst.NewContext(artifact.StorageState)
	if err != nil {
		log.Printf("[validator] %s: restore failed: %v", artifact.UserID, err)
		return invalid(models.ReasonProbeFailed)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		log.Printf("[validator] %s: page failed: %v", artifact.UserID, err)
		return invalid(models.ReasonProbeFailed)
	}
	defer page.Close()

	if err := page.Goto(plat.ProbeURL, v.probeTimeout); err != nil {
		log.Printf("[validator] %s: probe navigation failed: %v", artifact.UserID, err)
		return invalid(models.ReasonProbeFailed)
	}

	// A silent redirect to the login page means the platform no longer
	// recognizes the session.
	if plat.LoginPathMarker != "" && strings.Contains(page.URL(), plat.LoginPathMarker) {
		log.Printf("[validator] %s: probe landed on login page %s", artifact.UserID, page.URL())
		return invalid(models.ReasonSessionExpired)
	}

	if plat.AuthMarker != "" {
		if err := page.WaitForSelector(plat.AuthMarker, v.probeTimeout); err != nil {
			log.Printf("[validator] %s: authenticated marker missing: %v", artifact.UserID, err)
			return invalid(models.ReasonSessionExpired)
		}
	}

	return Verdict{Valid: true}
}
