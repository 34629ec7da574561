// Package gcontacts matches the user's Google address book against the
// messaging session's contacts by phone number.
package gcontacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/model"
)

// peopleURL lists the authenticated user's connections.
const peopleURL = "https://people.googleapis.com/v1/people/me/connections"

// connectionsResponse mirrors the People API response shape we consume.
type connectionsResponse struct {
	Connections   []person `json:"connections"`
	NextPageToken string   `json:"nextPageToken"`
}

type person struct {
	Names        []personName  `json:"names"`
	PhoneNumbers []personPhone `json:"phoneNumbers"`
}

type personName struct {
	DisplayName string `json:"displayName"`
}

type personPhone struct {
	Value string `json:"value"`
}

// Match pairs one Google contact phone number with a session contact.
type Match struct {
	GoogleName  string `json:"googleName"`
	ContactName string `json:"whatsappName"`
	PhoneNumber string `json:"phoneNumber"`
	ContactID   string `json:"whatsappId"`
}

// Unmatched is a Google contact number with no session counterpart.
type Unmatched struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// SyncReport summarizes one sync round.
type SyncReport struct {
	TotalGoogleContacts int         `json:"totalGoogleContacts"`
	TotalContacts       int         `json:"totalWhatsAppContacts"`
	Matches             []Match     `json:"matches"`
	Unmatched           []Unmatched `json:"unmatched"`
}

// Client talks to the Google People API.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *zap.Logger
}

// New creates a People API client.
func New(logger *zap.Logger) *Client {
	return &Client{
		http:    resty.New(),
		baseURL: peopleURL,
		logger:  logger,
	}
}

// Sync fetches the Google address book with the given OAuth access token
// and matches it against contacts by phone number.
func (c *Client) Sync(ctx context.Context, accessToken string, contacts []model.Contact) (*SyncReport, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("google access token is required")
	}

	people, err := c.fetchConnections(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	c.logger.Info("fetched google contacts", zap.Int("count", len(people)))

	report := &SyncReport{
		TotalGoogleContacts: len(people),
		TotalContacts:       len(contacts),
		Matches:             []Match{},
		Unmatched:           []Unmatched{},
	}

	for _, p := range people {
		name := "Unknown"
		if len(p.Names) > 0 && p.Names[0].DisplayName != "" {
			name = p.Names[0].DisplayName
		}
		for _, phone := range p.PhoneNumbers {
			if contact, ok := matchByNumber(phone.Value, contacts); ok {
				report.Matches = append(report.Matches, Match{
					GoogleName:  name,
					ContactName: contact.DisplayName(),
					PhoneNumber: phone.Value,
					ContactID:   contact.ID,
				})
			} else {
				report.Unmatched = append(report.Unmatched, Unmatched{
					Name:        name,
					PhoneNumber: phone.Value,
				})
			}
		}
	}
	return report, nil
}

func (c *Client) fetchConnections(ctx context.Context, accessToken string) ([]person, error) {
	var people []person
	pageToken := ""

	for {
		var page connectionsResponse
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(accessToken).
			SetQueryParam("personFields", "names,phoneNumbers,emailAddresses").
			SetResult(&page)
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		resp, err := req.Get(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("fetch google contacts: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("google api error: %s", resp.Status())
		}

		people = append(people, page.Connections...)
		if page.NextPageToken == "" {
			return people, nil
		}
		pageToken = page.NextPageToken
	}
}

// matchByNumber compares digit sequences; either side containing the
// other counts, which tolerates country-code prefixes.
func matchByNumber(number string, contacts []model.Contact) (*model.Contact, bool) {
	clean := digits(number)
	if clean == "" {
		return nil, false
	}
	for i := range contacts {
		contactDigits := digits(contacts[i].Number)
		if contactDigits == "" {
			continue
		}
		if strings.Contains(contactDigits, clean) || strings.Contains(clean, contactDigits) {
			return &contacts[i], true
		}
	}
	return nil, false
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
