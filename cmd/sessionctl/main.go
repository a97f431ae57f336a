// sessionctl is a thin local command surface over the automation core.
// Onboarding runs here rather than against a remote server because it
// needs a visible browser on the operator's display.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/sessionpilot/internal/action"
	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/config"
	"github.com/shehryarbajwa/sessionpilot/internal/engine"
	"github.com/shehryarbajwa/sessionpilot/internal/platform"
	"github.com/shehryarbajwa/sessionpilot/internal/registry"
	"github.com/shehryarbajwa/sessionpilot/internal/store"
	"github.com/shehryarbajwa/sessionpilot/internal/validator"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: sessionctl <command> [flags]

Commands:
  onboard   -user <id> -platform <name> [-login-url <url>]   guided login, persists the session
  automate  -user <id> -action <name> [-text|-url|-path ...]  run one automation action
  sessions                                                    list persisted sessions
  has       -user <id>                                        check for a persisted session
  delete    -user <id>                                        delete a persisted session

Platforms: %v
Actions:   publish_post, profile_check, screenshot
`, platform.Names())
	os.Exit(2)
}

func newEngine(cfg config.Config) (*engine.Engine, error) {
	st := store.NewEncrypted(cfg.SessionsDir, cfg.KeyFile)
	if err := st.EnsureReady(); err != nil {
		return nil, err
	}
	driver := browser.NewPlaywrightDriver()
	reg := registry.New(cfg.HandleTTL)
	val := validator.New(driver, cfg.ProbeTimeout, cfg.Headless)
	return engine.New(cfg, st, reg, val, driver), nil
}

func main() {
	log.SetFlags(0)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded settings from .env")
	}

	if len(os.Args) < 2 {
		usage()
	}

	cfg := config.Load()
	eng, err := newEngine(cfg)
	if err != nil {
		log.Fatalf("sessionctl: %v", err)
	}
	defer func() {
		if err := eng.CloseAll(); err != nil {
			log.Printf("sessionctl: cleanup: %v", err)
		}
	}()

	switch os.Args[1] {
	case "onboard":
		err = cmdOnboard(eng, os.Args[2:])
	case "automate":
		err = cmdAutomate(eng, os.Args[2:])
	case "sessions":
		err = cmdSessions(eng)
	case "has":
		err = cmdHas(eng, os.Args[2:])
	case "delete":
		err = cmdDelete(eng, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		eng.CloseAll()
		log.Fatalf("sessionctl: %v", err)
	}
}

func cmdOnboard(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("onboard", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	plat := fs.String("platform", "linkedin", "target platform")
	loginURL := fs.String("login-url", "", "override the platform login page")
	fs.Parse(args)
	if *user == "" {
		return fmt.Errorf("onboard: -user is required")
	}

	ctx := context.Background()
	err := eng.StartOnboard(ctx, models.StartOnboardRequest{
		UserID:   *user,
		Platform: *plat,
		LoginURL: *loginURL,
	})
	if err != nil {
		return err
	}

	fmt.Printf("A browser window is open. Log in to %s as %s.\n", *plat, *user)
	stdin := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Press Enter when the login is complete (or type q to abandon): ")
		line, _ := stdin.ReadString('\n')
		if len(line) > 0 && (line[0] == 'q' || line[0] == 'Q') {
			return eng.CancelOnboard(*user)
		}

		info, err := eng.ConfirmOnboard(ctx, *user)
		if errors.Is(err, engine.ErrOnboardPending) {
			fmt.Println("Still on the login page; finish logging in first.")
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("Session saved for %s on %s.\n", info.UserID, info.Platform)
		return nil
	}
}

func cmdAutomate(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("automate", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	name := fs.String("action", "", "action to perform")
	text := fs.String("text", "", "post text (publish_post)")
	url := fs.String("url", "", "page to check (profile_check)")
	path := fs.String("path", "", "output file (screenshot)")
	fs.Parse(args)
	if *user == "" || *name == "" {
		return fmt.Errorf("automate: -user and -action are required")
	}

	params := map[string]string{}
	if *text != "" {
		params["text"] = *text
	}
	if *url != "" {
		params["url"] = *url
	}
	if *path != "" {
		params["path"] = *path
	}

	act, err := action.New(*name, params)
	if err != nil {
		return err
	}

	result := eng.Automate(context.Background(), *user, act)
	printJSON(result)
	if !result.Success {
		return fmt.Errorf("run failed: %s", result.Reason)
	}
	return nil
}

func cmdSessions(eng *engine.Engine) error {
	infos, err := eng.ListSessions()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No persisted sessions.")
		return nil
	}
	printJSON(infos)
	return nil
}

func cmdHas(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("has", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	fs.Parse(args)
	if *user == "" {
		return fmt.Errorf("has: -user is required")
	}

	ok, err := eng.HasSession(*user)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	return nil
}

func cmdDelete(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	fs.Parse(args)
	if *user == "" {
		return fmt.Errorf("delete: -user is required")
	}

	if err := eng.DeleteSession(*user); err != nil {
		return err
	}
	fmt.Printf("Session deleted for %s (if one existed).\n", *user)
	return nil
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encode output: %v", err)
		return
	}
	fmt.Println(string(b))
}
