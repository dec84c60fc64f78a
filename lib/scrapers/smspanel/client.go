package smspanel

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"otprelay-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/smspanel")

var ErrLoginFailed = fmt.Errorf("Failed to login to your account.")
var ErrChallengeNotFound = fmt.Errorf("could not find the arithmetic challenge on the sign-in page")

const loginPath = "/login"
const dataPath = "/client/SMSCDRStats"

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	username string
	password string
}

type ClientOptions struct {
	BaseUrl  string
	Username string
	Password string
	// optional sink for full request/response dumps, nil disables them
	DebugOutput restyutil.InstrumentOutput
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, otel.Tracer("scrapers/smspanel/http"), opts.DebugOutput)

	c := &Client{
		BaseUrl:  baseUrl,
		Http:     client,
		username: opts.Username,
		password: opts.Password,
	}
	return c, nil
}

// the challenge is always a two-term addition stated on the sign-in
// page, e.g. "What is 3 + 5 = ?". anything else means the provider
// changed the page and login should fail loudly.
var challengeRegex = regexp.MustCompile(`(\d+)\s*\+\s*(\d+)`)

func solveChallenge(doc *goquery.Document) (string, error) {
	groups := challengeRegex.FindStringSubmatch(doc.Text())
	if len(groups) < 3 {
		return "", ErrChallengeNotFound
	}
	a, err := strconv.Atoi(groups[1])
	if err != nil {
		return "", ErrChallengeNotFound
	}
	b, err := strconv.Atoi(groups[2])
	if err != nil {
		return "", ErrChallengeNotFound
	}
	return strconv.Itoa(a + b), nil
}

// markers that only ever show up inside the authenticated area. a
// sign-in response lacking all of them is a failed login no matter
// what status code came back.
var authenticatedMarkers = []string{"logout", "sign out", "dashboard"}

func containsAuthenticatedMarker(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range authenticatedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch sign-in page")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse sign-in page html")
		return err
	}

	answer, err := solveChallenge(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to solve challenge")
		return err
	}

	form := map[string]string{
		"username": c.username,
		"password": c.password,
		"captcha":  answer,
	}
	// hidden inputs on the sign-in form have to be echoed back or the
	// panel rejects the post
	doc.Find("form input[type=hidden]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name != "" {
			form[name] = s.AttrOr("value", "")
		}
	})

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	if !containsAuthenticatedMarker(res.String()) {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	return nil
}
