// Package bullhorn logs calls and messages as Bullhorn notes.
//
// Bullhorn REST calls do not accept the OAuth access token directly. A REST
// login exchanges it for a BhRestToken and a data-center specific restUrl,
// both kept in the user's additional info.
package bullhorn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/model"
)

const Platform = "bullhorn"

const (
	defaultAuthBaseURL = "https://auth.bullhornstaffing.com"
	defaultLoginURL    = "https://rest.bullhornstaffing.com/rest-services/login"

	infoRestToken = "bhRestToken"
	infoRestURL   = "restUrl"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthBaseURL  string
	LoginURL     string
}

type Connector struct {
	cfg    Config
	client *httpclient.Client
}

var (
	_ connector.OAuthConnector = (*Connector)(nil)
	_ connector.TokenRefresher = (*Connector)(nil)
	_ connector.UnionMatcher   = (*Connector)(nil)
	_ connector.ContactTyper   = (*Connector)(nil)
)

func New(cfg Config, client *httpclient.Client) *Connector {
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = defaultAuthBaseURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	return &Connector{cfg: cfg, client: client}
}

func (c *Connector) Platform() string         { return Platform }
func (c *Connector) AuthType() model.AuthType { return model.AuthTypeOAuth }
func (c *Connector) MatchesAllVariants() bool { return true }
func (c *Connector) ContactTypes() []string   { return []string{"Candidate"} }

func (c *Connector) OAuthInfo(hostname string) connector.OAuthInfo {
	return connector.OAuthInfo{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		AuthorizeURL: c.cfg.AuthBaseURL + "/oauth/authorize",
		TokenURL:     c.cfg.AuthBaseURL + "/oauth/token",
		RedirectURI:  c.cfg.RedirectURI,
	}
}

type restSession struct {
	BhRestToken string `json:"BhRestToken"`
	RestURL     string `json:"restUrl"`
}

func (s restSession) info() map[string]string {
	return map[string]string{infoRestToken: s.BhRestToken, infoRestURL: s.RestURL}
}

func (c *Connector) login(ctx context.Context, accessToken string) (*restSession, error) {
	query := url.Values{"version": {"*"}, "access_token": {accessToken}}
	resp, err := c.client.Get(ctx, c.cfg.LoginURL, query, nil)
	if err != nil {
		return nil, fmt.Errorf("bullhorn rest login: %w", err)
	}
	var session restSession
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	if session.BhRestToken == "" || session.RestURL == "" {
		return nil, fmt.Errorf("bullhorn rest login returned no session")
	}
	return &session, nil
}

// RefreshToken runs the refresh grant and then a REST login, since the old
// BhRestToken dies with the old access token.
func (c *Connector) RefreshToken(ctx context.Context, user *model.User, info connector.OAuthInfo) (*model.TokenSet, error) {
	tokens, err := connector.RefreshGrant(ctx, c.client, info, user.RefreshToken)
	if err != nil {
		return nil, err
	}
	session, err := c.login(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	tokens.AdditionalInfo = session.info()
	return tokens, nil
}

// rest calls the REST API with the stored session, logging in again once
// when Bullhorn reports the session expired.
func (c *Connector) rest(ctx context.Context, user *model.User, req *httpclient.Request, path string) (*httpclient.Response, error) {
	info := user.AdditionalInfo()
	session := &restSession{BhRestToken: info[infoRestToken], RestURL: info[infoRestURL]}

	if session.BhRestToken == "" || session.RestURL == "" {
		fresh, err := c.login(ctx, user.AccessToken)
		if err != nil {
			return nil, err
		}
		session = fresh
	}

	resp, err := c.doREST(ctx, session, req, path)
	var httpErr *httpclient.Error
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		log.Debug().Str("userId", user.ID).Msg("bullhorn rest session expired, logging in again")
		fresh, loginErr := c.login(ctx, user.AccessToken)
		if loginErr != nil {
			return nil, loginErr
		}
		return c.doREST(ctx, fresh, req, path)
	}
	return resp, err
}

func (c *Connector) doREST(ctx context.Context, session *restSession, req *httpclient.Request, path string) (*httpclient.Response, error) {
	call := *req
	call.URL = strings.TrimSuffix(session.RestURL, "/") + "/" + strings.TrimPrefix(path, "/")
	call.Headers = map[string]string{"BhRestToken": session.BhRestToken}
	return c.client.Do(ctx, &call)
}

func (c *Connector) GetUserInfo(ctx context.Context, req connector.UserInfoRequest) (*connector.UserInfo, error) {
	session, err := c.login(ctx, req.AccessToken)
	if err != nil {
		return nil, err
	}

	resp, err := c.doREST(ctx, session, &httpclient.Request{Method: http.MethodGet}, "settings/userId")
	if err != nil {
		return nil, err
	}
	var settings struct {
		UserID json.RawMessage `json:"userId"`
	}
	if err := resp.JSON(&settings); err != nil {
		return nil, err
	}
	userID := connector.IDString(settings.UserID)

	resp, err = c.doREST(ctx, session, &httpclient.Request{
		Method: http.MethodGet,
		Query:  url.Values{"fields": {"id,name"}},
	}, "entity/CorporateUser/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}
	var user struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := resp.JSON(&user); err != nil {
		return nil, err
	}

	return &connector.UserInfo{
		ID:             userID,
		Name:           user.Data.Name,
		Hostname:       req.Hostname,
		AdditionalInfo: session.info(),
	}, nil
}

type searchResult struct {
	Data []struct {
		ID         json.RawMessage `json:"id"`
		Name       string          `json:"name"`
		Occupation string          `json:"occupation"`
	} `json:"data"`
}

func (c *Connector) search(ctx context.Context, user *model.User, entity, query, fields, contactType, phone string) ([]model.ContactCandidate, error) {
	resp, err := c.rest(ctx, user, &httpclient.Request{
		Method: http.MethodGet,
		Query:  url.Values{"query": {query}, "fields": {fields}},
	}, "search/"+entity)
	if err != nil {
		return nil, err
	}

	var result searchResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	contacts := make([]model.ContactCandidate, 0, len(result.Data))
	for _, d := range result.Data {
		contacts = append(contacts, model.ContactCandidate{
			ID:    connector.IDString(d.ID),
			Name:  d.Name,
			Phone: phone,
			Type:  contactType,
			Title: d.Occupation,
		})
	}
	return contacts, nil
}

func (c *Connector) FindContact(ctx context.Context, req connector.FindContactRequest) ([]model.ContactCandidate, error) {
	quoted := fmt.Sprintf("%q", req.PhoneNumber)
	phoneQuery := fmt.Sprintf("phone:%s OR mobile:%s OR phone2:%s OR workPhone:%s", quoted, quoted, quoted, quoted)

	candidates, err := c.search(ctx, req.User, "Candidate", phoneQuery, "id,name,occupation", "Candidate", req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	contacts, err := c.search(ctx, req.User, "ClientContact", phoneQuery+" AND isDeleted:false", "id,name,occupation", "Contact", req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	return connector.MergeContacts(candidates, contacts...), nil
}

func (c *Connector) CreateContact(ctx context.Context, req connector.CreateContactRequest) (*model.ContactCandidate, error) {
	first, last := connector.SplitName(req.Name)
	resp, err := c.rest(ctx, req.User, &httpclient.Request{
		Method: http.MethodPut,
		JSON: map[string]any{
			"firstName": first,
			"lastName":  last,
			"name":      req.Name,
			"phone":     req.PhoneNumber,
		},
	}, "entity/Candidate")
	if err != nil {
		return nil, err
	}

	id, err := changedEntityID(resp)
	if err != nil {
		return nil, err
	}
	return &model.ContactCandidate{ID: id, Name: req.Name, Phone: req.PhoneNumber, Type: "Candidate"}, nil
}

func noteBody(contactID, action, comments string, dateAddedMillis int64) map[string]any {
	body := map[string]any{
		"action":          action,
		"comments":        comments,
		"personReference": map[string]any{"id": contactID},
	}
	if dateAddedMillis > 0 {
		body["dateAdded"] = dateAddedMillis
	}
	return body
}

func (c *Connector) CreateCallLog(ctx context.Context, req connector.CreateCallLogRequest) (string, error) {
	action := req.AdditionalSubmission["noteAction"]
	if action == "" {
		action = "Call"
	}
	body := noteBody(req.ContactID, action, req.Note.RenderHTML(connector.UserLocation(req.User)), req.Note.StartTime.UnixMilli())

	resp, err := c.rest(ctx, req.User, &httpclient.Request{Method: http.MethodPut, JSON: body}, "entity/Note")
	if err != nil {
		return "", err
	}
	return changedEntityID(resp)
}

func (c *Connector) UpdateCallLog(ctx context.Context, req connector.UpdateCallLogRequest) error {
	body := map[string]any{"comments": req.Note.RenderHTML(connector.UserLocation(req.User))}
	_, err := c.rest(ctx, req.User, &httpclient.Request{Method: http.MethodPost, JSON: body}, "entity/Note/"+url.PathEscape(req.ThirdPartyLogID))
	return err
}

func (c *Connector) GetCallLog(ctx context.Context, req connector.GetCallLogRequest) (*model.CallLogData, error) {
	resp, err := c.rest(ctx, req.User, &httpclient.Request{
		Method: http.MethodGet,
		Query:  url.Values{"fields": {"comments,action"}},
	}, "entity/Note/"+url.PathEscape(req.ThirdPartyLogID))
	if err != nil {
		return nil, err
	}
	var note struct {
		Data struct {
			Action   string `json:"action"`
			Comments string `json:"comments"`
		} `json:"data"`
	}
	if err := resp.JSON(&note); err != nil {
		return nil, err
	}
	return &model.CallLogData{Subject: note.Data.Action, Note: note.Data.Comments}, nil
}

func (c *Connector) CreateMessageLog(ctx context.Context, req connector.CreateMessageLogRequest) (string, error) {
	action := "SMS"
	switch req.Message.Type {
	case model.MessageKindVoicemail:
		action = "Voicemail"
	case model.MessageKindFax:
		action = "Fax"
	}
	body := noteBody(req.ContactID, action, req.Note.RenderHTML(connector.UserLocation(req.User)), req.Message.CreationTime.UnixMilli())

	resp, err := c.rest(ctx, req.User, &httpclient.Request{Method: http.MethodPut, JSON: body}, "entity/Note")
	if err != nil {
		return "", err
	}
	return changedEntityID(resp)
}

func (c *Connector) UpdateMessageLog(ctx context.Context, req connector.UpdateMessageLogRequest) error {
	body := map[string]any{"comments": req.Note.RenderHTML(connector.UserLocation(req.User))}
	_, err := c.rest(ctx, req.User, &httpclient.Request{Method: http.MethodPost, JSON: body}, "entity/Note/"+url.PathEscape(req.ThirdPartyLogID))
	return err
}

// UnAuthorize is a no-op: Bullhorn has no token revocation endpoint.
func (c *Connector) UnAuthorize(ctx context.Context, user *model.User) error {
	return nil
}

func changedEntityID(resp *httpclient.Response) (string, error) {
	var result struct {
		ChangedEntityID json.RawMessage `json:"changedEntityId"`
	}
	if err := resp.JSON(&result); err != nil {
		return "", err
	}
	id := connector.IDString(result.ChangedEntityID)
	if id == "" {
		return "", fmt.Errorf("bullhorn response missing changedEntityId")
	}
	return id, nil
}
