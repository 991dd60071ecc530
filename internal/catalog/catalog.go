package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"
)

// OfferType classifies an offer (loan, credit_card, ...). The set of type
// labels present in a country's feed is the dynamic part of the intent
// vocabulary.
type OfferType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Header is one display label/value pair attached to an offer.
type Header struct {
	Title          string `json:"title"`
	Value          string `json:"value"`
	AdditionalTerm string `json:"additional_term"`
	IsPreview      bool   `json:"is_preview"`
	Position       int    `json:"position"`
}

// Country is the offer's market association.
type Country struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code"`
}

// Offer is one catalog record. Read-only to this service.
type Offer struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	OfferType OfferType `json:"offer_type"`
	Headers   []Header `json:"headers"`
	Country   Country  `json:"country"`
	URL       string   `json:"url"`
	Avatar    string   `json:"avatar"`
	IsPartner bool     `json:"is_partner"`
	RPC       float64  `json:"rpc"`
}

// Result is one country's catalog slice plus the distinct offer-type
// labels found in it.
type Result struct {
	Offers []Offer
	Types  []string
}

type page struct {
	Total int     `json:"total"`
	Items []Offer `json:"items"`
	Page  int     `json:"page"`
	Size  int     `json:"size"`
}

// Client fetches offers from the catalog API. Upstream failures degrade
// to empty results; offer absence is never fatal to a conversation.
type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
}

func NewClient(baseURL string, pageSize int, timeout time.Duration) *Client {
	if pageSize <= 0 {
		pageSize = 500
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
	}
}

// Fetch returns the partner-visible offers for a country together with
// the distinct offer-type vocabulary present in the feed.
func (c *Client) Fetch(ctx context.Context, countryCode string) (Result, error) {
	values := url.Values{}
	values.Set("country_code", countryCode)
	values.Set("page", "1")
	values.Set("size", strconv.Itoa(c.pageSize))

	items := c.query(ctx, values)

	offers := lo.Filter(items, func(o Offer, _ int) bool {
		return o.Country.CountryCode == "" || o.Country.CountryCode == countryCode
	})

	types := lo.Uniq(lo.FilterMap(offers, func(o Offer, _ int) (string, bool) {
		return o.OfferType.Type, o.OfferType.Type != ""
	}))
	sort.Strings(types)

	return Result{Offers: offers, Types: types}, nil
}

// FetchByIDs resolves a shortlist of offer ids back into full display
// records, preserving the order of ids.
func (c *Client) FetchByIDs(ctx context.Context, ids []int64, countryCode string) ([]Offer, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values := url.Values{}
	values.Set("country_code", countryCode)
	values.Set("page", "1")
	values.Set("size", strconv.Itoa(len(ids)))
	for _, id := range ids {
		values.Add("id", strconv.FormatInt(id, 10))
	}

	items := c.query(ctx, values)
	byID := lo.KeyBy(items, func(o Offer) int64 { return o.ID })

	out := make([]Offer, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, values url.Values) []Offer {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		slog.WarnContext(ctx, "catalog request build failed", "err", err)
		return nil
	}

	res, err := c.http.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "catalog unreachable", "err", err)
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		slog.WarnContext(ctx, "catalog returned non-200", "status", res.StatusCode)
		return nil
	}

	var p page
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		slog.WarnContext(ctx, "catalog response decode failed", "err", fmt.Errorf("decode offers page: %w", err))
		return nil
	}
	return p.Items
}
