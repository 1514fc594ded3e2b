// Package dtf is the concrete client for the Deep Tech Finder dashboard
// API: a Cloudflare-fronted remote that hands out cursor-paginated JSON to
// browsers it trusts. Each session is a fresh resty client with its own
// cookie jar, warmed up against the explore page before any API call.
package dtf

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"dtfcollect/lib/restyutil"
	"dtfcollect/lib/source"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/dtf")

var instrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

const (
	DefaultBaseUrl   = "https://dtf.epo.org"
	explorePath      = "/datav/public/dashboard-frontend/host_epoorg.html"
	publicationsPath = "/datav/public/datavisualisation/api/dataset/1/publications"
	applicantsPath   = "/datav/public/datavisualisation/api/dataset/1/applicants"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type ProviderOptions struct {
	BaseUrl string
	// SettleWait is how long to give the anti-bot check to clear after
	// loading the explore page before giving up on the session.
	SettleWait time.Duration
}

type Provider struct {
	baseUrl    *url.URL
	settleWait time.Duration
}

func NewProvider(opts ProviderOptions) (*Provider, error) {
	raw := opts.BaseUrl
	if raw == "" {
		raw = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url %s: %w", raw, err)
	}
	return &Provider{baseUrl: baseUrl, settleWait: opts.SettleWait}, nil
}

// Establish builds a fresh session: new cookie jar, Cloudflare bypass
// transport, browser-like headers, then a warm-up navigation of the explore
// page so the jar carries whatever clearance the remote hands out.
func (p *Provider) Establish(ctx context.Context) (source.Session, error) {
	ctx, span := tracer.Start(ctx, "provider:Establish")
	defer span.End()

	client := resty.New()
	client.SetBaseURL(p.baseUrl.String())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &source.SessionError{Op: "establish", Err: err}
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(p.baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, instrumentOutput)

	s := &Session{
		http:       client,
		baseUrl:    p.baseUrl,
		settleWait: p.settleWait,
	}
	if err := s.warmUp(ctx); err != nil {
		return nil, &source.SessionError{Op: "establish", Err: err}
	}
	return s, nil
}
