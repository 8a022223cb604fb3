// Command testevent books a one-hour appointment starting now, to check the
// Google credentials and calendar id end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"calendar_bot/adapter/out/provider"
	"calendar_bot/config"
	"calendar_bot/core/domain"
	"calendar_bot/core/service/dispatch"
	"calendar_bot/pkg/logger"
	"calendar_bot/pkg/resilience"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	phone := flag.String("phone", "+32412345678", "phone number written into the event description")
	summary := flag.String("summary", "Test appointment via bot", "event summary")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ExternalTimeout()*2)
	defer cancel()

	oauthCfg, err := provider.LoadOAuthConfig(cfg.GoogleCredentialsFile)
	if err != nil {
		logger.Fatal("%v", err)
	}
	tok, err := provider.LoadToken(cfg.GoogleTokenFile)
	if err != nil {
		logger.Fatal("%v", err)
	}
	svc, err := provider.NewCalendarService(ctx, oauthCfg, tok)
	if err != nil {
		logger.Fatal("%v", err)
	}

	guard := resilience.DefaultGuardConfig("google_calendar")
	guard.Timeout = cfg.ExternalTimeout()
	adapter := provider.NewGoogleCalendarAdapter(svc, provider.GoogleCalendarConfig{
		CalendarID: cfg.CalendarID,
		Location:   cfg.Location(),
		Guard:      resilience.NewGuard(guard),
	})

	start := time.Now().In(cfg.Location())
	event, err := adapter.CreateEvent(ctx, &domain.CandidateAppointment{
		Start:       start,
		End:         start.Add(time.Hour),
		Summary:     *summary,
		Description: dispatch.Description(*phone),
		Requester:   *phone,
	})
	if err != nil {
		logger.Fatal("Failed to create event: %v", err)
	}
	fmt.Printf("Event created: %s\n", event.Link)
}
