// Copyright 2026 geyser Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ingest scrapes articles and votes from a wikidot wiki.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"
	"github.com/geyser-io/geyser/base/log"
	"github.com/geyser-io/geyser/dataset"
	"github.com/goccy/go-json"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"
	"go.uber.org/zap"
)

const (
	tokenCookie    = "wikidot_token7"
	pageIdMarker   = "WIKIREQUEST.info.pageId"
	voteModuleName = "pagerate/WhoRatedPageModule"
	maxRedirects   = 10
)

var (
	ErrNoToken  = errors.NotFoundf("cookie %s", tokenCookie)
	ErrNoPageId = errors.NotFoundf("page id")
)

// Collaborator receives scraped users and articles. *dataset.VoteStore
// satisfies it.
type Collaborator interface {
	AddUser(name string) (int32, error)
	AddArticle(key, pageId string, votes []dataset.Vote) error
	UpdateArticle(key string, votes []dataset.Vote) error
	ArticleId(key string) int32
}

// StatusError is returned for responses with a non-2xx status code.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Options configures a Scraper.
type Options struct {
	WikiURL      string
	VoteEndpoint string
	UserAgent    string
	Timeout      time.Duration
	// RateLimit is the maximum number of requests per second.
	RateLimit  float64
	MaxRetries uint
	// RetryInterval is the initial interval between retries.
	RetryInterval time.Duration
}

// Scraper downloads articles and their votes as a guest.
type Scraper struct {
	wikiURL       *url.URL
	voteEndpoint  string
	userAgent     string
	maxRetries    uint
	retryInterval time.Duration
	client        *http.Client
	bucket        *ratelimit.Bucket
}

func NewScraper(opts Options) (*Scraper, error) {
	wikiURL, err := url.Parse(opts.WikiURL)
	if err != nil {
		return nil, errors.Annotate(err, "parse wiki url")
	}
	if !strings.HasSuffix(wikiURL.Path, "/") {
		wikiURL.Path += "/"
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if opts.RateLimit <= 0 {
		return nil, errors.NotValidf("rate limit %v", opts.RateLimit)
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = backoff.DefaultInitialInterval
	}
	return &Scraper{
		wikiURL:       wikiURL,
		voteEndpoint:  opts.VoteEndpoint,
		userAgent:     opts.UserAgent,
		maxRetries:    max(opts.MaxRetries, 1),
		retryInterval: opts.RetryInterval,
		client: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		bucket: ratelimit.NewBucketWithRate(opts.RateLimit, max(1, int64(opts.RateLimit))),
	}, nil
}

func (s *Scraper) wait(ctx context.Context) error {
	d := s.bucket.Take(1)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// do sends a request built by newRequest and returns the response body. Failed
// requests are retried with exponential backoff, except client errors other
// than 429.
func (s *Scraper) do(ctx context.Context, newRequest func() (*http.Request, error)) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	return backoff.Retry(ctx, func() (string, error) {
		if err := s.wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		req, err := newRequest()
		if err != nil {
			return "", backoff.Permanent(errors.Trace(err))
		}
		req.Header.Set("User-Agent", s.userAgent)
		resp, err := s.client.Do(req)
		if err != nil {
			return "", errors.Trace(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", errors.Trace(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return string(body), nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.maxRetries), backoff.WithNotify(func(err error, next time.Duration) {
		log.Logger().Warn("request failed, retrying", zap.Duration("after", next), zap.Error(err))
	}))
}

// Token obtains the guest session token required by wikidot modules. The
// token is set as a cookie by any page of the wiki.
func (s *Scraper) Token(ctx context.Context) (string, error) {
	_, err := s.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodHead, s.wikiURL.String(), nil)
	})
	if err != nil {
		return "", errors.Trace(err)
	}
	for _, cookie := range s.client.Jar.Cookies(s.wikiURL) {
		if cookie.Name == tokenCookie {
			return cookie.Value, nil
		}
	}
	return "", errors.Trace(ErrNoToken)
}

// FetchArticle downloads the page of an article.
func (s *Scraper) FetchArticle(ctx context.Context, key string) (string, error) {
	articleURL := s.wikiURL.JoinPath(key).String()
	body, err := s.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	})
	return body, errors.Trace(err)
}

// ExtractPageId finds the page id assigned by an inline script in the head
// of an article page.
func ExtractPageId(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", errors.Trace(err)
	}
	var (
		pageId string
		found  bool
	)
	doc.Find("head script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		if _, hasSrc := script.Attr("src"); hasSrc {
			return true
		}
		source := script.Text()
		_, rest, ok := strings.Cut(source, pageIdMarker)
		if !ok {
			return true
		}
		rest = strings.TrimLeft(rest, " \t")
		rest, ok = strings.CutPrefix(rest, "=")
		if !ok {
			return true
		}
		value, _, _ := strings.Cut(rest, ";")
		value = strings.TrimSpace(value)
		if _, err := strconv.ParseUint(value, 10, 32); err != nil {
			return true
		}
		pageId, found = value, true
		return false
	})
	if !found {
		return "", errors.Trace(ErrNoPageId)
	}
	return pageId, nil
}

type moduleResponse struct {
	Status string  `json:"status"`
	Body   *string `json:"body"`
}

// FetchVotes requests the vote module of a page and returns its HTML body.
func (s *Scraper) FetchVotes(ctx context.Context, pageId, token string) (string, error) {
	form := url.Values{}
	form.Set("pageId", pageId)
	form.Set("moduleName", voteModuleName)
	form.Set("callbackIndex", "1")
	form.Set(tokenCookie, token)
	data, err := s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.voteEndpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", errors.Trace(err)
	}
	var resp moduleResponse
	if err = json.Unmarshal([]byte(data), &resp); err != nil {
		return "", errors.Annotate(err, "decode vote module response")
	}
	if resp.Body == nil {
		return "", errors.NotFoundf("body in vote module response (status %q)", resp.Status)
	}
	return *resp.Body, nil
}

// ParsedVote is a vote with the name of its user.
type ParsedVote struct {
	User string
	Up   bool
}

// ParseVotes extracts votes from the body of the vote module. Spans in the
// first div alternate between users and votes. Votes of deleted accounts
// carry no user link and are skipped.
func ParseVotes(body string) ([]ParsedVote, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	div := doc.Find("div").First()
	if div.Length() == 0 {
		return nil, errors.NotFoundf("vote list")
	}
	spans := div.Find("span")
	votes := make([]ParsedVote, 0, spans.Length()/2)
	for i := 0; i+1 < spans.Length(); i += 2 {
		userLink := spans.Eq(i).Find("a").Eq(1)
		if userLink.Length() == 0 {
			continue
		}
		votes = append(votes, ParsedVote{
			User: strings.TrimSpace(userLink.Text()),
			Up:   strings.TrimSpace(spans.Eq(i+1).Text()) == "+",
		})
	}
	if spans.Length()%2 != 0 {
		log.Logger().Warn("unpaired span in vote list", zap.Int("n_spans", spans.Length()))
	}
	return votes, nil
}

// Result counts the outcome of an update.
type Result struct {
	Added   int
	Updated int
	Skipped int
}

// ArticleKey returns the key of an SCP article by its number.
func ArticleKey(number int) string {
	return fmt.Sprintf("scp-%03d", number)
}

// Update scrapes articles numbered from..to (inclusive) into the store.
// Existing articles get their votes replaced. Articles failing to download or
// parse are logged and skipped. onArticle, if not nil, is called after every
// article.
func (s *Scraper) Update(ctx context.Context, store Collaborator, from, to int, onArticle func(key string)) (Result, error) {
	var result Result
	token, err := s.Token(ctx)
	if err != nil {
		return result, errors.Annotate(err, "obtain session token")
	}
	log.Logger().Debug("obtained session token")
	for number := from; number <= to; number++ {
		if err := ctx.Err(); err != nil {
			return result, errors.Trace(err)
		}
		key := ArticleKey(number)
		updated, err := s.updateArticle(ctx, store, key, token)
		switch {
		case err != nil:
			result.Skipped++
			log.Logger().Warn("skip article", zap.String("article", key), zap.Error(err))
		case updated:
			result.Updated++
		default:
			result.Added++
		}
		if onArticle != nil {
			onArticle(key)
		}
	}
	log.Logger().Info("update complete",
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Scraper) updateArticle(ctx context.Context, store Collaborator, key, token string) (bool, error) {
	page, err := s.FetchArticle(ctx, key)
	if err != nil {
		return false, errors.Trace(err)
	}
	pageId, err := ExtractPageId(page)
	if err != nil {
		return false, errors.Trace(err)
	}
	body, err := s.FetchVotes(ctx, pageId, token)
	if err != nil {
		return false, errors.Trace(err)
	}
	parsed, err := ParseVotes(body)
	if err != nil {
		return false, errors.Trace(err)
	}
	votes := make([]dataset.Vote, 0, len(parsed))
	for _, vote := range parsed {
		userId, err := store.AddUser(vote.User)
		if err != nil {
			return false, errors.Trace(err)
		}
		votes = append(votes, dataset.Vote{UserId: userId, Up: vote.Up})
	}
	log.Logger().Debug("scraped article",
		zap.String("article", key), zap.String("page_id", pageId), zap.Int("n_votes", len(votes)))
	if store.ArticleId(key) != dataset.NotId {
		return true, errors.Trace(store.UpdateArticle(key, votes))
	}
	return false, errors.Trace(store.AddArticle(key, pageId, votes))
}
