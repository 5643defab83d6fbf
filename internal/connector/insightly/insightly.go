// Package insightly logs calls and messages as Insightly events.
package insightly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/util"
)

const Platform = "insightly"

const (
	apiVersion      = "/v3.1"
	defaultHostname = "api.na1.insightly.com"
	insightlyTime   = "2006-01-02 15:04:05"
)

type Config struct {
	// BaseURL replaces https://<hostname> for every request.
	BaseURL string
}

type Connector struct {
	cfg    Config
	client *httpclient.Client
}

var (
	_ connector.APIKeyConnector = (*Connector)(nil)
	_ connector.UnionMatcher    = (*Connector)(nil)
	_ connector.ContactTyper    = (*Connector)(nil)
)

func New(cfg Config, client *httpclient.Client) *Connector {
	return &Connector{cfg: cfg, client: client}
}

func (c *Connector) Platform() string         { return Platform }
func (c *Connector) AuthType() model.AuthType { return model.AuthTypeAPIKey }
func (c *Connector) MatchesAllVariants() bool { return true }
func (c *Connector) ContactTypes() []string   { return []string{"Contact", "Lead"} }

// BasicAuth encodes the API key as the username with an empty password.
func (c *Connector) BasicAuth(apiKey string) string {
	return util.BasicAuthValue(apiKey, "")
}

func (c *Connector) apiURL(hostname, path string) string {
	base := c.cfg.BaseURL
	if base == "" {
		if hostname == "" {
			hostname = defaultHostname
		}
		base = "https://" + hostname
	}
	return strings.TrimSuffix(base, "/") + apiVersion + path
}

func headers(authHeader string) map[string]string {
	return map[string]string{"Authorization": authHeader}
}

func (c *Connector) GetUserInfo(ctx context.Context, req connector.UserInfoRequest) (*connector.UserInfo, error) {
	resp, err := c.client.Get(ctx, c.apiURL(req.Hostname, "/Users/Me"), nil, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var me struct {
		UserID     json.RawMessage `json:"USER_ID"`
		FirstName  string          `json:"FIRST_NAME"`
		LastName   string          `json:"LAST_NAME"`
		TimezoneID string          `json:"TIMEZONE_ID"`
		InstanceID json.RawMessage `json:"INSTANCE_ID"`
	}
	if err := resp.JSON(&me); err != nil {
		return nil, err
	}

	hostname := req.Hostname
	if hostname == "" {
		hostname = defaultHostname
	}
	return &connector.UserInfo{
		ID:           connector.IDString(me.UserID),
		Name:         strings.TrimSpace(me.FirstName + " " + me.LastName),
		TimezoneName: me.TimezoneID,
		Hostname:     hostname,
		AdditionalInfo: map[string]string{
			"instanceId": connector.IDString(me.InstanceID),
		},
	}, nil
}

type person struct {
	ContactID json.RawMessage `json:"CONTACT_ID"`
	LeadID    json.RawMessage `json:"LEAD_ID"`
	FirstName string          `json:"FIRST_NAME"`
	LastName  string          `json:"LAST_NAME"`
	Title     string          `json:"TITLE"`
}

func (p person) candidate(contactType, phone string) model.ContactCandidate {
	id := p.ContactID
	if contactType == "Lead" {
		id = p.LeadID
	}
	return model.ContactCandidate{
		ID:    connector.IDString(id),
		Name:  strings.TrimSpace(p.FirstName + " " + p.LastName),
		Phone: phone,
		Type:  contactType,
		Title: p.Title,
	}
}

func (c *Connector) search(ctx context.Context, req connector.FindContactRequest, collection, field, contactType string) ([]model.ContactCandidate, error) {
	query := url.Values{
		"field_name":  {field},
		"field_value": {req.PhoneNumber},
		"brief":       {"true"},
	}
	resp, err := c.client.Get(ctx, c.apiURL(req.User.Hostname, "/"+collection+"/Search"), query, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}
	var people []person
	if err := resp.JSON(&people); err != nil {
		return nil, err
	}
	out := make([]model.ContactCandidate, 0, len(people))
	for _, p := range people {
		out = append(out, p.candidate(contactType, req.PhoneNumber))
	}
	return out, nil
}

func (c *Connector) FindContact(ctx context.Context, req connector.FindContactRequest) ([]model.ContactCandidate, error) {
	var contacts []model.ContactCandidate
	searches := []struct{ collection, field, contactType string }{
		{"Contacts", "PHONE", "Contact"},
		{"Contacts", "PHONE_MOBILE", "Contact"},
		{"Leads", "PHONE", "Lead"},
		{"Leads", "MOBILE", "Lead"},
	}
	for _, s := range searches {
		found, err := c.search(ctx, req, s.collection, s.field, s.contactType)
		if err != nil {
			return nil, err
		}
		contacts = connector.MergeContacts(contacts, found...)
	}
	return contacts, nil
}

func (c *Connector) CreateContact(ctx context.Context, req connector.CreateContactRequest) (*model.ContactCandidate, error) {
	collection, contactType := "/Contacts", "Contact"
	if req.Type == "Lead" {
		collection, contactType = "/Leads", "Lead"
	}

	first, last := connector.SplitName(req.Name)
	body := map[string]any{
		"FIRST_NAME": first,
		"LAST_NAME":  last,
		"PHONE":      req.PhoneNumber,
	}
	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, collection), body, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var created person
	if err := resp.JSON(&created); err != nil {
		return nil, err
	}
	candidate := created.candidate(contactType, req.PhoneNumber)
	return &candidate, nil
}

func eventBody(title, details, contactType, contactID string, start time.Time, duration int) map[string]any {
	if contactType == "" {
		contactType = "Contact"
	}
	start = start.UTC()
	return map[string]any{
		"TITLE":          title,
		"DETAILS":        details,
		"START_DATE_UTC": start.Format(insightlyTime),
		"END_DATE_UTC":   start.Add(time.Duration(duration) * time.Second).Format(insightlyTime),
		"ALL_DAY":        false,
		"LINKS": []map[string]any{{
			"LINK_OBJECT_NAME": contactType,
			"LINK_OBJECT_ID":   contactID,
		}},
	}
}

func (c *Connector) CreateCallLog(ctx context.Context, req connector.CreateCallLogRequest) (string, error) {
	body := eventBody(req.Note.Subject, req.Note.RenderText(connector.UserLocation(req.User)),
		req.ContactType, req.ContactID, req.Note.StartTime, req.Note.Duration)

	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/Events"), body, headers(req.AuthHeader))
	if err != nil {
		return "", err
	}
	return eventID(resp)
}

func (c *Connector) UpdateCallLog(ctx context.Context, req connector.UpdateCallLogRequest) error {
	body := map[string]any{
		"EVENT_ID": req.ThirdPartyLogID,
		"TITLE":    req.Note.Subject,
		"DETAILS":  req.Note.RenderText(connector.UserLocation(req.User)),
	}
	_, err := c.client.PutJSON(ctx, c.apiURL(req.User.Hostname, "/Events"), body, headers(req.AuthHeader))
	return err
}

func (c *Connector) GetCallLog(ctx context.Context, req connector.GetCallLogRequest) (*model.CallLogData, error) {
	resp, err := c.client.Get(ctx, c.apiURL(req.User.Hostname, "/Events/"+url.PathEscape(req.ThirdPartyLogID)), nil, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}
	var event struct {
		Title   string `json:"TITLE"`
		Details string `json:"DETAILS"`
	}
	if err := resp.JSON(&event); err != nil {
		return nil, err
	}
	return &model.CallLogData{Subject: event.Title, Note: event.Details}, nil
}

func (c *Connector) CreateMessageLog(ctx context.Context, req connector.CreateMessageLogRequest) (string, error) {
	body := eventBody(req.Note.Subject, req.Note.RenderText(connector.UserLocation(req.User)),
		req.ContactType, req.ContactID, req.Message.CreationTime, 0)

	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/Events"), body, headers(req.AuthHeader))
	if err != nil {
		return "", err
	}
	return eventID(resp)
}

func (c *Connector) UpdateMessageLog(ctx context.Context, req connector.UpdateMessageLogRequest) error {
	body := map[string]any{
		"EVENT_ID": req.ThirdPartyLogID,
		"DETAILS":  req.Note.RenderText(connector.UserLocation(req.User)),
	}
	_, err := c.client.PutJSON(ctx, c.apiURL(req.User.Hostname, "/Events"), body, headers(req.AuthHeader))
	return err
}

// UnAuthorize has nothing to revoke; the key stays valid until rotated in Insightly.
func (c *Connector) UnAuthorize(ctx context.Context, user *model.User) error {
	return nil
}

func eventID(resp *httpclient.Response) (string, error) {
	var event struct {
		EventID json.RawMessage `json:"EVENT_ID"`
	}
	if err := resp.JSON(&event); err != nil {
		return "", err
	}
	id := connector.IDString(event.EventID)
	if id == "" {
		return "", fmt.Errorf("insightly response missing EVENT_ID")
	}
	return id, nil
}
