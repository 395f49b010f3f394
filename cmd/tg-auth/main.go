package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	goflags "github.com/jessevdk/go-flags"
	"github.com/mdp/qrterminal/v3"

	"github.com/blockedby/chanscope/internal/config"
	"github.com/blockedby/chanscope/internal/database"
	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/telegram"
)

type options struct {
	Phone   string `long:"phone" description:"log in with a phone number and login code instead of a QR token"`
	TData   string `long:"tdata" description:"import a Telegram Desktop tdata directory (use 'auto' for the default location)"`
	Account int    `long:"account" default:"1" description:"tdata account number"`
}

func main() {
	var opts options
	if _, err := goflags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	fmt.Println("=== telegram auth tool ===")
	fmt.Println("this tool stores an authorized mtproto session in the database")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if !cfg.TelegramConfigured() {
		fail("config", fmt.Errorf("TG_API_ID and TG_API_HASH are required (https://my.telegram.org)"))
	}
	if err := logger.Init("warn", cfg.LogFile); err != nil {
		fail("init logger", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fail("connect to database", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		fail("migrate database", err)
	}

	storage := telegram.NewSessionStorage(db.GORM, cfg.TGSessionName)

	if opts.TData != "" {
		path := opts.TData
		if path == "auto" {
			path = telegramDesktopPath()
		} else if !strings.HasSuffix(path, "tdata") {
			path = filepath.Join(path, "tdata")
		}
		fmt.Printf("importing telegram desktop session from %s\n", path)
		if err := telegram.ImportTDesktop(ctx, storage, path, opts.Account-1); err != nil {
			fail("import tdata", err)
		}
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) (string, error) {
		fmt.Printf("enter %s: ", label)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	zapLog, err := telegram.NewZapLogger("warn")
	if err != nil {
		fail("build mtproto logger", err)
	}

	if opts.Phone == "" && opts.TData == "" {
		fmt.Println("scan the code below in telegram: settings > devices > link desktop device")
	}

	self, err := telegram.Login(ctx, telegram.LoginOptions{
		Options: telegram.Options{
			AppID:   cfg.TGApiID,
			AppHash: cfg.TGApiHash,
			Storage: storage,
			ZapLog:  zapLog,
		},
		Phone: opts.Phone,
		ShowQR: func(url string) {
			fmt.Println()
			qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
			fmt.Println("waiting for confirmation (the code refreshes automatically)...")
		},
		Prompt: prompt,
	})
	if err != nil {
		fail("authentication", err)
	}

	fmt.Println("\n✓ authentication successful!")
	if self.Username != "" {
		fmt.Printf("logged in as: @%s\n", self.Username)
	} else {
		fmt.Printf("logged in as user %d\n", self.ID)
	}
	fmt.Printf("session %q saved to the database\n", cfg.TGSessionName)
	fmt.Println("\n⚠️  keep the database private! the session provides full access to your telegram account")
}

func fail(step string, err error) {
	fmt.Printf("error: %s: %v\n", step, err)
	os.Exit(1)
}

// telegramDesktopPath returns the default Telegram Desktop data directory.
func telegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}
