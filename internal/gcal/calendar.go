package gcal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/coffeechat/scheduler/internal/scheduling"
)

// Client talks to Google Calendar on behalf of users whose tokens are in the
// store: it imports busy time into the engine's busy-interval rows and
// creates Meet-backed events for new appointments.
type Client struct {
	oauth  *oauth2.Config
	tokens *TokenStore
	repo   scheduling.Repository
	log    *zap.Logger
}

func NewClient(clientID, clientSecret, redirectURL string, tokens *TokenStore, repo scheduling.Repository, log *zap.Logger) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		tokens: tokens,
		repo:   repo,
		log:    log,
	}
}

func (c *Client) service(ctx context.Context, userID uuid.UUID) (*calendar.Service, error) {
	tok, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ts := &persistingTokenSource{
		ctx:    ctx,
		userID: userID,
		store:  c.tokens,
		src:    c.oauth.TokenSource(ctx, tok),
		last:   tok.AccessToken,
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("build calendar service: %w", err)
	}
	return svc, nil
}

// ImportBusyIntervals pulls the next 7 days of primary-calendar events and
// appends them as busy intervals. Rows accumulate across imports; the busy
// filter tolerates the duplicates. All-day events carry no dateTime and are
// skipped.
func (c *Client) ImportBusyIntervals(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	svc, err := c.service(ctx, userID)
	if err != nil {
		return 0, err
	}

	timeMin := now.UTC().Truncate(time.Second)
	timeMax := timeMin.Add(scheduling.WindowDays * 24 * time.Hour)

	events, err := svc.Events.List("primary").
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("list calendar events: %w", err)
	}

	var intervals []scheduling.Interval
	for _, ev := range events.Items {
		if ev.Start == nil || ev.End == nil || ev.Start.DateTime == "" || ev.End.DateTime == "" {
			continue
		}

		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			c.log.Warn("unparseable event start", zap.String("event_id", ev.Id), zap.Error(err))
			continue
		}
		end, err := time.Parse(time.RFC3339, ev.End.DateTime)
		if err != nil {
			c.log.Warn("unparseable event end", zap.String("event_id", ev.Id), zap.Error(err))
			continue
		}

		intervals = append(intervals, scheduling.Interval{Start: start.UTC(), End: end.UTC()})
	}

	if err := c.repo.InsertBusyIntervals(ctx, userID, intervals, now.UTC()); err != nil {
		return 0, fmt.Errorf("store busy intervals: %w", err)
	}

	c.log.Info("calendar import complete",
		zap.String("user_id", userID.String()),
		zap.Int("events", len(intervals)))

	return len(intervals), nil
}

// CreateMeeting creates a Meet-backed calendar event on the booker's primary
// calendar with the receiver invited, and returns the event id and join link.
// Implements scheduling.MeetingCreator.
func (c *Client) CreateMeeting(ctx context.Context, booker, receiver *scheduling.User, start, end time.Time) (*scheduling.MeetingDetails, error) {
	svc, err := c.service(ctx, booker.ID)
	if err != nil {
		return nil, err
	}

	event := &calendar.Event{
		Summary: fmt.Sprintf("Coffee chat with %s", receiver.Name),
		Start:   &calendar.EventDateTime{DateTime: start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:     &calendar.EventDateTime{DateTime: end.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	if receiver.Email != nil {
		event.Attendees = []*calendar.EventAttendee{{Email: *receiver.Email}}
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}

	return &scheduling.MeetingDetails{
		MeetingID:   created.Id,
		MeetingLink: created.HangoutLink,
	}, nil
}
