// Package pipedrive logs calls and messages as Pipedrive activities.
package pipedrive

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
	"github.com/crmbridge/bridge-server/internal/util"
)

const Platform = "pipedrive"

const (
	defaultOAuthBaseURL = "https://oauth.pipedrive.com"
	defaultAPIBaseURL   = "https://api.pipedrive.com"

	callActivityType    = "call"
	messageActivityType = "task"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// OAuthBaseURL and APIBaseURL override the public endpoints.
	OAuthBaseURL string
	APIBaseURL   string
}

type Connector struct {
	cfg    Config
	client *httpclient.Client
}

var (
	_ connector.OAuthConnector   = (*Connector)(nil)
	_ connector.RevocationParser = (*Connector)(nil)
)

func New(cfg Config, client *httpclient.Client) *Connector {
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = defaultOAuthBaseURL
	}
	return &Connector{cfg: cfg, client: client}
}

func (c *Connector) Platform() string         { return Platform }
func (c *Connector) AuthType() model.AuthType { return model.AuthTypeOAuth }

func (c *Connector) OAuthInfo(hostname string) connector.OAuthInfo {
	return connector.OAuthInfo{
		ClientID:           c.cfg.ClientID,
		ClientSecret:       c.cfg.ClientSecret,
		AuthorizeURL:       c.cfg.OAuthBaseURL + "/oauth/authorize",
		TokenURL:           c.cfg.OAuthBaseURL + "/oauth/token",
		RedirectURI:        c.cfg.RedirectURI,
		ClientAuthInHeader: true,
	}
}

// apiURL resolves a path against the company domain stored as the user's hostname.
func (c *Connector) apiURL(hostname, path string) string {
	base := c.cfg.APIBaseURL
	if base == "" {
		if hostname != "" {
			base = "https://" + hostname
		} else {
			base = defaultAPIBaseURL
		}
	}
	return strings.TrimSuffix(base, "/") + "/api" + path
}

func headers(authHeader string) map[string]string {
	return map[string]string{"Authorization": authHeader}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func decode(resp *httpclient.Response, target any) error {
	var env envelope
	if err := resp.JSON(&env); err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("decode pipedrive data: %w", err)
	}
	return nil
}

func (c *Connector) GetUserInfo(ctx context.Context, req connector.UserInfoRequest) (*connector.UserInfo, error) {
	resp, err := c.client.Get(ctx, c.apiURL(req.Hostname, "/v1/users/me"), nil, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var me struct {
		ID             json.RawMessage `json:"id"`
		Name           string          `json:"name"`
		TimezoneName   string          `json:"timezone_name"`
		TimezoneOffset string          `json:"timezone_offset"`
		CompanyDomain  string          `json:"company_domain"`
		CompanyID      json.RawMessage `json:"company_id"`
	}
	if err := decode(resp, &me); err != nil {
		return nil, err
	}

	hostname := req.Hostname
	if me.CompanyDomain != "" {
		hostname = me.CompanyDomain + ".pipedrive.com"
	}
	return &connector.UserInfo{
		ID:             connector.IDString(me.ID),
		Name:           me.Name,
		TimezoneName:   me.TimezoneName,
		TimezoneOffset: me.TimezoneOffset,
		Hostname:       hostname,
		AdditionalInfo: map[string]string{"companyId": connector.IDString(me.CompanyID)},
	}, nil
}

func (c *Connector) FindContact(ctx context.Context, req connector.FindContactRequest) ([]model.ContactCandidate, error) {
	query := url.Values{
		"term":           {req.PhoneNumber},
		"fields":         {"phone"},
		"exact_matching": {"true"},
	}
	resp, err := c.client.Get(ctx, c.apiURL(req.User.Hostname, "/v1/persons/search"), query, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []struct {
			Item struct {
				ID           json.RawMessage `json:"id"`
				Name         string          `json:"name"`
				Phones       []string        `json:"phones"`
				Organization *struct {
					Name string `json:"name"`
				} `json:"organization"`
			} `json:"item"`
		} `json:"items"`
	}
	if err := decode(resp, &result); err != nil {
		return nil, err
	}

	contacts := make([]model.ContactCandidate, 0, len(result.Items))
	for _, it := range result.Items {
		candidate := model.ContactCandidate{
			ID:    connector.IDString(it.Item.ID),
			Name:  it.Item.Name,
			Phone: req.PhoneNumber,
			Type:  "Contact",
		}
		if it.Item.Organization != nil {
			candidate.AdditionalInfo = map[string]any{"organization": it.Item.Organization.Name}
		}
		contacts = append(contacts, candidate)
	}
	return contacts, nil
}

func (c *Connector) CreateContact(ctx context.Context, req connector.CreateContactRequest) (*model.ContactCandidate, error) {
	body := map[string]any{
		"name":  req.Name,
		"phone": []map[string]any{{"value": req.PhoneNumber, "primary": true, "label": "work"}},
	}
	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/v1/persons"), body, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}

	var person struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := decode(resp, &person); err != nil {
		return nil, err
	}
	return &model.ContactCandidate{
		ID:    connector.IDString(person.ID),
		Name:  person.Name,
		Phone: req.PhoneNumber,
		Type:  "Contact",
	}, nil
}

func (c *Connector) CreateCallLog(ctx context.Context, req connector.CreateCallLogRequest) (string, error) {
	loc := connector.UserLocation(req.User)
	start := req.Note.StartTime.UTC()
	body := map[string]any{
		"subject":   req.Note.Subject,
		"type":      callActivityType,
		"done":      1,
		"person_id": req.ContactID,
		"note":      req.Note.RenderHTML(loc),
		"due_date":  start.Format("2006-01-02"),
		"due_time":  start.Format("15:04"),
		"duration":  durationHHMM(req.Note.Duration),
	}
	if dealID := req.AdditionalSubmission["deal"]; dealID != "" {
		body["deal_id"] = dealID
	}

	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/v1/activities"), body, headers(req.AuthHeader))
	if err != nil {
		return "", err
	}
	return activityID(resp)
}

func (c *Connector) UpdateCallLog(ctx context.Context, req connector.UpdateCallLogRequest) error {
	body := map[string]any{
		"subject": req.Note.Subject,
		"note":    req.Note.RenderHTML(connector.UserLocation(req.User)),
	}
	_, err := c.client.PutJSON(ctx, c.apiURL(req.User.Hostname, "/v1/activities/"+url.PathEscape(req.ThirdPartyLogID)), body, headers(req.AuthHeader))
	return err
}

func (c *Connector) GetCallLog(ctx context.Context, req connector.GetCallLogRequest) (*model.CallLogData, error) {
	resp, err := c.client.Get(ctx, c.apiURL(req.User.Hostname, "/v1/activities/"+url.PathEscape(req.ThirdPartyLogID)), nil, headers(req.AuthHeader))
	if err != nil {
		return nil, err
	}
	var activity struct {
		Subject string `json:"subject"`
		Note    string `json:"note"`
	}
	if err := decode(resp, &activity); err != nil {
		return nil, err
	}
	return &model.CallLogData{Subject: activity.Subject, Note: activity.Note}, nil
}

func (c *Connector) CreateMessageLog(ctx context.Context, req connector.CreateMessageLogRequest) (string, error) {
	created := req.Message.CreationTime.UTC()
	body := map[string]any{
		"subject":   req.Note.Subject,
		"type":      messageActivityType,
		"done":      1,
		"person_id": req.ContactID,
		"note":      req.Note.RenderHTML(connector.UserLocation(req.User)),
		"due_date":  created.Format("2006-01-02"),
		"due_time":  created.Format("15:04"),
	}
	resp, err := c.client.PostJSON(ctx, c.apiURL(req.User.Hostname, "/v1/activities"), body, headers(req.AuthHeader))
	if err != nil {
		return "", err
	}
	return activityID(resp)
}

func (c *Connector) UpdateMessageLog(ctx context.Context, req connector.UpdateMessageLogRequest) error {
	body := map[string]any{
		"note": req.Note.RenderHTML(connector.UserLocation(req.User)),
	}
	_, err := c.client.PutJSON(ctx, c.apiURL(req.User.Hostname, "/v1/activities/"+url.PathEscape(req.ThirdPartyLogID)), body, headers(req.AuthHeader))
	return err
}

// UnAuthorize revokes the refresh token, which also invalidates access tokens.
func (c *Connector) UnAuthorize(ctx context.Context, user *model.User) error {
	if user.RefreshToken == "" {
		return nil
	}
	form := url.Values{
		"token":           {user.RefreshToken},
		"token_type_hint": {"refresh_token"},
	}
	auth := map[string]string{
		"Authorization": "Basic " + util.BasicAuthValue(c.cfg.ClientID, c.cfg.ClientSecret),
	}
	_, err := c.client.PostForm(ctx, c.cfg.OAuthBaseURL+"/oauth/revoke", form, auth)
	return err
}

// ParseRevocation handles the app-uninstall callback, which Pipedrive signs
// with the client credentials as HTTP Basic auth.
func (c *Connector) ParseRevocation(r *http.Request) (string, error) {
	user, pass, ok := r.BasicAuth()
	if !ok || !util.ConstantTimeEqual(user, c.cfg.ClientID) || !util.ConstantTimeEqual(pass, c.cfg.ClientSecret) {
		return "", fmt.Errorf("invalid uninstall credentials")
	}

	var body struct {
		ClientID  string          `json:"client_id"`
		UserID    json.RawMessage `json:"user_id"`
		CompanyID json.RawMessage `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode uninstall body: %w", err)
	}
	userID := connector.IDString(body.UserID)
	if userID == "" {
		return "", fmt.Errorf("uninstall body missing user_id")
	}
	return userID, nil
}

func activityID(resp *httpclient.Response) (string, error) {
	var activity struct {
		ID json.RawMessage `json:"id"`
	}
	if err := decode(resp, &activity); err != nil {
		return "", err
	}
	id := connector.IDString(activity.ID)
	if id == "" {
		return "", fmt.Errorf("pipedrive response missing activity id")
	}
	return id, nil
}

func durationHHMM(seconds int) string {
	minutes := (seconds + 59) / 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
