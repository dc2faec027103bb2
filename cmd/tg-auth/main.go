package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/gotd/td/session/tdesktop"
	"github.com/mdp/qrterminal/v3"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/database"
	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/telegram"
)

func main() {
	fmt.Println("=== telegram auth tool ===")
	fmt.Println("this tool stores a telegram session for the relay")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if err := logger.Init("warn", ""); err != nil {
		fail("init logger", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := bufio.NewReader(os.Stdin)
	getAPICredentials(cfg, reader)

	// the string session, if any, is what we are replacing
	cfg.TGSessionStr = ""

	db, err := database.Open(cfg.SessionPath)
	if err != nil {
		fail("open session store", err)
	}
	manager := telegram.NewManager(cfg, db)

	accounts, tdataPath := findTDesktop(reader)

	fmt.Println("choose authentication method:")
	if len(accounts) > 0 {
		fmt.Printf("  1. use telegram desktop session at %s (%d account(s))\n", tdataPath, len(accounts))
	}
	fmt.Println("  2. authenticate with phone number (sms/code)")
	fmt.Println("  3. scan a QR code with the telegram app")
	fmt.Print("\nenter choice [3]: ")

	switch prompt(reader) {
	case "1":
		if len(accounts) == 0 {
			fail("telegram desktop", fmt.Errorf("no accounts found"))
		}
		err = manager.ImportTDesktop(ctx, selectAccount(accounts, reader))
	case "2":
		fmt.Print("enter your phone number (with country code, e.g. +1234567890): ")
		cfg.TGPhone = prompt(reader)
		fmt.Println("\nauthenticating... (check telegram for code)")
	default:
		manager.SetPasswordFunc(func(context.Context) (string, error) {
			fmt.Print("enter your two-step verification password: ")
			return prompt(reader), nil
		})
		err = manager.StartQR(ctx, func(url string) {
			fmt.Println("\nscan this code in telegram: settings > devices > link desktop device")
			qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
		})
	}
	if err != nil {
		fail("authentication", err)
	}

	// starting the persistent client verifies the stored session; for
	// phone login it runs the interactive code flow and stores the result
	client, err := telegram.NewPersistentClient(ctx, cfg)
	if err != nil {
		fail("start client", err)
	}
	defer client.Stop()

	sessionString, err := client.ExportStringSession()
	if err != nil {
		fail("export session", err)
	}

	fmt.Println("\n✓ authentication successful!")
	fmt.Printf("logged in as: @%s\n", client.Self.Username)
	fmt.Printf("session stored in: %s\n", cfg.SessionPath)
	fmt.Println("\nyour session string:")
	fmt.Println("---")
	fmt.Println(sessionString)
	fmt.Println("---")
	fmt.Println("\nset it as TG_SESSION_STRING to run without the session store")
	fmt.Println("\n⚠️  keep this secret! it provides full access to your telegram account")
}

func fail(what string, err error) {
	fmt.Printf("error: %s: %v\n", what, err)
	os.Exit(1)
}

func prompt(reader *bufio.Reader) string {
	s, _ := reader.ReadString('\n')
	return strings.TrimSpace(s)
}

// getTelegramDesktopPath returns the path to Telegram Desktop data directory
func getTelegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default: // linux
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

// findTDesktop reads Telegram Desktop accounts from the default path, or
// from a path the user enters.
func findTDesktop(reader *bufio.Reader) ([]tdesktop.Account, string) {
	tdataPath := getTelegramDesktopPath()
	accounts, err := tdesktop.Read(tdataPath, nil)
	if err == nil && len(accounts) > 0 {
		return accounts, tdataPath
	}

	fmt.Printf("telegram desktop data not found at: %s\n", tdataPath)
	fmt.Print("enter telegram desktop path (or press enter to skip): ")
	customPath := prompt(reader)
	if customPath == "" {
		return nil, ""
	}
	if !strings.HasSuffix(customPath, "tdata") {
		customPath = filepath.Join(customPath, "tdata")
	}
	accounts, err = tdesktop.Read(customPath, nil)
	if err != nil {
		fmt.Printf("cannot read %s: %v\n", customPath, err)
		return nil, ""
	}
	return accounts, customPath
}

func selectAccount(accounts []tdesktop.Account, reader *bufio.Reader) tdesktop.Account {
	if len(accounts) == 1 {
		fmt.Println("\nusing the only available account")
		return accounts[0]
	}

	fmt.Printf("\nfound %d telegram accounts:\n", len(accounts))
	for i := range accounts {
		fmt.Printf("  %d. Account #%d\n", i+1, i+1)
	}
	fmt.Print("\nselect account number [1]: ")

	idx := 0
	if n, err := strconv.Atoi(prompt(reader)); err == nil && n >= 1 && n <= len(accounts) {
		idx = n - 1
	}
	return accounts[idx]
}

// getAPICredentials prompts for API ID and Hash missing from the environment
func getAPICredentials(cfg *config.Config, reader *bufio.Reader) {
	if cfg.TGApiID == 0 {
		fmt.Print("enter your api_id (from https://my.telegram.org): ")
		apiID, err := strconv.Atoi(prompt(reader))
		if err != nil {
			fail("invalid api_id", err)
		}
		cfg.TGApiID = apiID
	}
	if cfg.TGApiHash == "" {
		fmt.Print("enter your api_hash: ")
		cfg.TGApiHash = prompt(reader)
	}
}
