package smspanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
)

var ErrUnauthenticated = fmt.Errorf("session could not be (re)established")
var ErrParseFailure = fmt.Errorf("data endpoint returned an unparseable body")
var ErrTransient = fmt.Errorf("transient fetch failure")

// errSessionExpired never escapes FetchWindow, it only signals that a
// fetch hit the login wall.
var errSessionExpired = errors.New("session expired")

// Window bounds a data query by start/end timestamps, inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow covers the calendar day containing `now`,
// 00:00:00 through 23:59:59.
func DayWindow(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{
		Start: start,
		End:   start.Add(time.Hour*24 - time.Second),
	}
}

const windowTimeFormat = "2006-01-02 15:04:05"

// FetchWindow queries the data endpoint for records inside the window.
// A session that turns out to be expired triggers exactly one re-login
// followed by one refetch; if the re-login fails, or the refetched
// session is still rejected, the call reports ErrUnauthenticated. The
// caller never sees a silently stale session.
func (c *Client) FetchWindow(ctx context.Context, w Window) (any, error) {
	ctx, span := tracer.Start(ctx, "client:FetchWindow")
	defer span.End()

	payload, err := c.fetchOnce(ctx, w)
	if !errors.Is(err, errSessionExpired) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
		}
		return payload, err
	}

	slog.InfoContext(ctx, "session expired, logging in again")
	err = c.Login(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "re-login failed")
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	payload, err = c.fetchOnce(ctx, w)
	if errors.Is(err, errSessionExpired) {
		span.SetStatus(codes.Error, "session rejected after re-login")
		return nil, ErrUnauthenticated
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed after re-login")
	}
	return payload, err
}

func (c *Client) fetchOnce(ctx context.Context, w Window) (any, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetQueryParams(map[string]string{
			"fdate1": w.Start.Format(windowTimeFormat),
			"fdate2": w.End.Format(windowTimeFormat),
		}).
		Get(dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if res.StatusCode() == http.StatusForbidden {
		return nil, errSessionExpired
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransient, res.StatusCode())
	}

	var payload any
	err = json.Unmarshal(res.Body(), &payload)
	if err != nil {
		// instead of a 403, the panel may serve its login page with a
		// 200 when the session is gone
		if isLoginPage(res.String()) {
			return nil, errSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	return payload, nil
}

var loginPageMarkers = []string{`type="password"`, "sign in", "log in"}

func isLoginPage(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range loginPageMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return challengeRegex.MatchString(body) && strings.Contains(lower, "<form")
}
