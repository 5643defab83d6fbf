// Package clio logs calls and messages as Clio phone communications.
package clio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/model"
)

const Platform = "clio"

const defaultHostname = "app.clio.com"

// Clio runs separate regional deployments; anything else falls back to the US host.
var regionalHosts = map[string]struct{}{
	"app.clio.com":    {},
	"eu.app.clio.com": {},
	"ca.app.clio.com": {},
	"au.app.clio.com": {},
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// BaseURL replaces https://<hostname> for every request.
	BaseURL string
}

type Connector struct {
	cfg    Config
	client *httpclient.Client
}

var (
	_ connector.OAuthConnector = (*Connector)(nil)
	_ connector.ContactTyper   = (*Connector)(nil)
)

func New(cfg Config, client *httpclient.Client) *Connector {
	return &Connector{cfg: cfg, client: client}
}

func (c *Connector) Platform() string         { return Platform }
func (c *Connector) AuthType() model.AuthType { return model.AuthTypeOAuth }
func (c *Connector) ContactTypes() []string   { return []string{"Person", "Company"} }

func (c *Connector) OAuthInfo(hostname string) connector.OAuthInfo {
	base := c.baseURL(hostname)
	return connector.OAuthInfo{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		AuthorizeURL: base + "/oauth/authorize",
		TokenURL:     base + "/oauth/token",
		RedirectURI:  c.cfg.RedirectURI,
	}
}

func (c *Connector) baseURL(hostname string) string {
	if c.cfg.BaseURL != "" {
		return strings.TrimSuffix(c.cfg.BaseURL, "/")
	}
	if _, ok := regionalHosts[hostname]; !ok {
		hostname = defaultHostname
	}
	return "https://" + hostname
}

func (c *Connector) apiURL(hostname, path string) string {
	return c.baseURL(hostname) + "/api/v4" + path
}

func headers(authHeader string) map[string]string {
	return map[string]string{"Authorization": authHeader}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decode(resp *httpclient.Response, target any) error {
	var env envelope
	if err := resp.JSON(&env); err != nil {
		return err
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("decode clio data: %w", err)
	}
	return nil
}

func (c *Connector) GetUserInfo(ctx context.Context, req connector.UserInfoRequest) (*connector.UserInfo, error) {
	query := url.Values{"fields": {"id,name,time_zone"}}
	resp, err := c.client.Get(ctx, c.apiURL(req.Hostname, "/users/who_am_i.json"), query, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var me struct {
		ID       json.RawMessage `json:"id"`
		Name     string          `json:"name"`
		TimeZone string          `json:"time_zone"`
	}
	if err := decode(resp, &me); err != nil {
		return nil, err
	}

	hostname := req.Hostname
	if _, ok := regionalHosts[hostname]; !ok {
		hostname = defaultHostname
	}
	return &connector.UserInfo{
		ID:           connector.IDString(me.ID),
		Name:         me.Name,
		TimezoneName: me.TimeZone,
		Hostname:     hostname,
	}, nil
}

type contact struct {
	ID                 json.RawMessage `json:"id"`
	Name               string          `json:"name"`
	Type               string          `json:"type"`
	Title              string          `json:"title"`
	PrimaryPhoneNumber string          `json:"primary_phone_number"`
}

func (ct contact) candidate(phone string) model.ContactCandidate {
	return model.ContactCandidate{
		ID:    connector.IDString(ct.ID),
		Name:  ct.Name,
		Phone: phone,
		Type:  ct.Type,
		Title: ct.Title,
	}
}

func (c *Connector) FindContact(ctx context.Context, req connector.FindContactRequest) ([]model.ContactCandidate, error) {
	query := url.Values{
		"query":  {req.PhoneNumber},
		"fields": {"id,name,type,title,primary_phone_number"},
	}
	resp, err := c.client.Get(ctx, c.apiURL(req.User.Hostname, "/contacts.json"), query, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var found []contact
	if err := decode(resp, &found); err != nil {
		return nil, err
	}

	contacts := make([]model.ContactCandidate, 0, len(found))
	for _, ct := range found {
		contacts = append(contacts, ct.candidate(req.PhoneNumber))
	}
	return contacts, nil
}

func (c *Connector) CreateContact(ctx context.Context, req connector.CreateContactRequest) (*model.ContactCandidate, error) {
	contactType := req.Type
	if contactType == "" {
		contactType = "Person"
	}

	data := map[string]any{
		"type":          contactType,
		"phone_numbers": []map[string]any{{"name": "Work", "number": req.PhoneNumber, "default_number": true}},
	}
	if contactType == "Person" {
		first, last := connector.SplitName(req.Name)
		data["first_name"] = first
		data["last_name"] = last
	} else {
		data["name"] = req.Name
	}

	query := url.Values{"fields": {"id,name,type,title"}}
	resp, err := c.client.Do(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     c.apiURL(req.User.Hostname, "/contacts.json"),
		Query:   query,
		Headers: headers(req.AuthHeader),
		JSON:    map[string]any{"data": data},
	})
	if err != nil {
		return nil, err
	}

	var created contact
	if err := decode(resp, &created); err != nil {
		return nil, err
	}
	candidate := created.candidate(req.PhoneNumber)
	return &candidate, nil
}

func (c *Connector) communication(user *model.User, contactID, subject, body, receivedAt string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"type":        "PhoneCommunication",
			"subject":     subject,
			"body":        body,
			"received_at": receivedAt,
			"senders":     []map[string]any{{"id": contactID, "type": "Contact"}},
			"receivers":   []map[string]any{{"id": connector.CRMUserID(user), "type": "User"}},
		},
	}
}

func (c *Connector) CreateCallLog(ctx context.Context, req connector.CreateCallLogRequest) (string, error) {
	body := c.communication(req.User, req.ContactID, req.Note.Subject,
		req.Note.RenderText(connector.UserLocation(req.User)),
		req.Note.StartTime.UTC().Format("2006-01-02T15:04:05Z"))
	if matterID := req.AdditionalSubmission["matter"]; matterID != "" {
		body["data"].(map[string]any)["matter"] = map[string]any{"id": matterID}
	}

	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/communications.json"), body, headers(req.AuthHeader))
	if err != nil {
		return "", err
	}
	return communicationID(resp)
}

func (c *Connector) UpdateCallLog(ctx context.Context, req connector.UpdateCallLogRequest) error {
	body := map[string]any{
		"data": map[string]any{
			"subject": req.Note.Subject,
			"body":    req.Note.RenderText(connector.UserLocation(req.User)),
		},
	}
	_, err := c.client.PatchJSON(ctx, c.apiURL(req.User.Hostname, "/communications/"+url.PathEscape(req.ThirdPartyLogID)+".json"), body, headers(req.AuthHeader))
	return err
}

func (c *Connector) GetCallLog(ctx context.Context, req connector.GetCallLogRequest) (*model.CallLogData, error) {
	query := url.Values{"fields": {"subject,body"}}
	resp, err := c.client.Get(ctx, c.apiURL(req.User.Hostname, "/communications/"+url.PathEscape(req.ThirdPartyLogID)+".json"), query, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}
	var comm struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := decode(resp, &comm); err != nil {
		return nil, err
	}
	return &model.CallLogData{Subject: comm.Subject, Note: comm.Body}, nil
}

func (c *Connector) CreateMessageLog(ctx context.Context, req connector.CreateMessageLogRequest) (string, error) {
	body := c.communication(req.User, req.ContactID, req.Note.Subject,
		req.Note.RenderText(connector.UserLocation(req.User)),
		req.Message.CreationTime.UTC().Format("2006-01-02T15:04:05Z"))

	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/communications.json"), body, headers(req.AuthHeader))
	if err != nil {
		return "", err
	}
	return communicationID(resp)
}

func (c *Connector) UpdateMessageLog(ctx context.Context, req connector.UpdateMessageLogRequest) error {
	body := map[string]any{
		"data": map[string]any{
			"body": req.Note.RenderText(connector.UserLocation(req.User)),
		},
	}
	_, err := c.client.PatchJSON(ctx, c.apiURL(req.User.Hostname, "/communications/"+url.PathEscape(req.ThirdPartyLogID)+".json"), body, headers(req.AuthHeader))
	return err
}

func (c *Connector) UnAuthorize(ctx context.Context, user *model.User) error {
	if user.AccessToken == "" {
		return nil
	}
	form := url.Values{"token": {user.AccessToken}}
	_, err := c.client.PostForm(ctx, c.baseURL(user.Hostname)+"/oauth/deauthorize", form, headers(connector.BearerHeader(user.AccessToken)))
	return err
}

func communicationID(resp *httpclient.Response) (string, error) {
	var comm struct {
		ID json.RawMessage `json:"id"`
	}
	if err := decode(resp, &comm); err != nil {
		return "", err
	}
	id := connector.IDString(comm.ID)
	if id == "" {
		return "", fmt.Errorf("clio response missing communication id")
	}
	return id, nil
}
