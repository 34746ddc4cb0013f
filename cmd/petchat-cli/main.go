package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"petchat/internal/client/live"
	"petchat/internal/client/session"
	"petchat/internal/client/store"
	"petchat/internal/infra/config"
	"petchat/internal/infra/obs"
	"petchat/internal/infra/security"
	"petchat/internal/tui"
)

type chatCommand struct {
	Listing string `short:"l" long:"listing" description:"open the conversation about this listing on start"`
	With    string `short:"w" long:"with" description:"interested user for --listing; defaults to yourself"`
}

type tokenCommand struct {
	User string        `short:"u" long:"user" required:"true" description:"user id the token is issued to"`
	Name string        `short:"n" long:"name" description:"display name carried in the token"`
	TTL  time.Duration `long:"ttl" default:"24h" description:"token lifetime"`
}

func main() {
	_ = godotenv.Load()
	parser := flags.NewParser(nil, flags.Default)
	parser.AddCommand("chat",
		"open the terminal chat",
		"The chat command connects to the API and opens your conversations. Configure it with PETCHAT_API_URL, PETCHAT_TOKEN and PETCHAT_USER_ID.",
		&chatCommand{})
	parser.AddCommand("token",
		"mint a development token",
		"The token command signs a bearer token with JWT_SECRET for local testing.",
		&tokenCommand{})

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func (c *chatCommand) Execute(args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if cfg.Token == "" || cfg.UserID == "" {
		return errors.New("PETCHAT_TOKEN and PETCHAT_USER_ID are required")
	}

	var logOut io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := obs.NewLoggerTo(logOut, cfg.Env, os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := store.NewHTTPAdapter(cfg.BaseURL, cfg.Token, cfg.Timeout, logger)
	view := session.Open(ctx, session.Config{
		LiveURL:      cfg.LiveURL,
		Token:        cfg.Token,
		UserID:       cfg.UserID,
		PollInterval: cfg.PollInterval,
	}, adapter, live.WebsocketDialer{}, logger)
	defer view.Close()

	var contact *tui.Contact
	if c.Listing != "" {
		with := strings.TrimSpace(c.With)
		if with == "" {
			with = cfg.UserID
		}
		contact = &tui.Contact{ListingID: c.Listing, CounterpartyID: with}
	}

	_, err = tea.NewProgram(tui.New(ctx, view, cfg.UserID, contact), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *tokenCommand) Execute(args []string) error {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "petchat"
	}
	tokens, err := security.NewJWT(secret, issuer)
	if err != nil {
		return err
	}
	token, err := tokens.Sign(c.User, c.Name, c.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
