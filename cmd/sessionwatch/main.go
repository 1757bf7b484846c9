package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/api/cache"
	"github.com/jrsteele09/go-session-client/identity"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/localstore"
	"github.com/jrsteele09/go-session-client/marketplace"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running sessionwatch: %s\n", err)
	}
	log.Printf("Stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := localstore.NewFileStore(c.GetDataFolder())
	if err != nil {
		return fmt.Errorf("localstore.NewFileStore %w", err)
	}

	provider := identity.NewHTTPProvider(c.GetIdentityBaseURL())
	events := identity.NewEventStream(ctx, wsURL(c.GetIdentityBaseURL())+"/session/events")
	defer events.Close()

	tokens, err := token.NewProvider(provider, local)
	if err != nil {
		return fmt.Errorf("token.NewProvider %w", err)
	}

	store, err := session.NewStore(provider, session.WithAuthEvents(events.Events()))
	if err != nil {
		return fmt.Errorf("session.NewStore %w", err)
	}
	session.SetDefault(store)
	defer session.ResetDefault()

	loginURL := fmt.Sprintf(c.GetLoginPath(), c.GetDefaultLocale())
	apiClient, err := api.NewClient(c.GetAPIBaseURL(), tokens,
		api.WithCache(cache.NewMemory(cache.DefaultTTL)),
		api.WithAuthExpiredHandler(loginURL, func(loginURL string) {
			log.Printf("Session expired, sign in again at %s\n", loginURL)
		}),
	)
	if err != nil {
		return fmt.Errorf("api.NewClient %w", err)
	}

	market, err := marketplace.NewClient(apiClient)
	if err != nil {
		return fmt.Errorf("marketplace.NewClient %w", err)
	}

	unsubscribe := store.Subscribe(func(snapshot session.Snapshot) {
		if snapshot.User != nil {
			log.Printf("Signed in as %s\n", snapshot.User.Email)
			return
		}
		log.Printf("Not signed in\n")
	})
	defer unsubscribe()

	if result, err := market.SearchListings(ctx, marketplace.SearchParams{PageSize: 5}); err != nil {
		log.Printf("Listing search failed: %s\n", err)
	} else {
		log.Printf("Marketplace reachable, %d listings\n", result.Total)
	}

	waitForStopSignal()
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("Shutting down...\n")
}

func displayAppname(appName string) {
	figure.NewFigure(appName, "", true).Print()
}

func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}
