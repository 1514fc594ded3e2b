package dtf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"dtfcollect/lib/source"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

type Session struct {
	http       *resty.Client
	baseUrl    *url.URL
	settleWait time.Duration
}

var _ source.Session = (*Session)(nil)

// warmUp navigates the explore page the way a browser would. When the remote
// serves an interstitial challenge instead, it waits settleWait and tries the
// page once more on the same cookie jar.
func (s *Session) warmUp(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:warmUp")
	defer span.End()

	res, err := s.http.R().
		SetContext(ctx).
		Get(explorePath)
	if err != nil {
		return err
	}
	if !isChallengePage(res.Body()) {
		return nil
	}
	if s.settleWait <= 0 {
		return fmt.Errorf("anti-bot challenge was not cleared on %s", explorePath)
	}

	slog.InfoContext(ctx, "waiting for anti-bot check to settle", "wait", s.settleWait.String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settleWait):
	}

	res, err = s.http.R().
		SetContext(ctx).
		Get(explorePath)
	if err != nil {
		return err
	}
	if isChallengePage(res.Body()) {
		return fmt.Errorf("anti-bot challenge persisted after %s", s.settleWait)
	}
	return nil
}

func isChallengePage(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	title := strings.TrimSpace(doc.Find("title").Text())
	if strings.Contains(title, "Just a moment") {
		return true
	}
	return doc.Find("#challenge-form").Length() > 0
}

// Refresh re-navigates the explore page on the existing cookie jar, picking
// up a new clearance without discarding cookies that are still valid.
func (s *Session) Refresh(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:Refresh")
	defer span.End()

	if err := s.warmUp(ctx); err != nil {
		return &source.SessionError{Op: "refresh", Err: err}
	}
	return nil
}

func (s *Session) Close() {
	s.http.GetClient().CloseIdleConnections()
}

func (s *Session) apiRequest(ctx context.Context) *resty.Request {
	origin := s.baseUrl.Scheme + "://" + s.baseUrl.Host
	return s.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetHeader("accept", "application/json, text/plain, */*").
		SetHeader("origin", origin).
		SetHeader("referer", origin+explorePath)
}
