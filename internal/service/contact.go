package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/connector"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/phone"
	"github.com/crmbridge/bridge-server/internal/util"
)

type FindContactParams struct {
	PhoneNumber      string
	OverridingFormat string
	IsExtension      bool
}

type ContactResult struct {
	Successful    bool                     `json:"successful"`
	Contacts      []model.ContactCandidate `json:"contact,omitempty"`
	ReturnMessage *model.ReturnMessage     `json:"returnMessage,omitempty"`
}

type CreateContactParams struct {
	PhoneNumber    string
	NewContactName string
	NewContactType string
}

type CreateContactResult struct {
	Successful    bool                    `json:"successful"`
	Contact       *model.ContactCandidate `json:"contact,omitempty"`
	ReturnMessage *model.ReturnMessage    `json:"returnMessage,omitempty"`
}

type ContactService struct {
	defaultRegion string
}

func NewContactService(defaultRegion string) *ContactService {
	return &ContactService{defaultRegion: defaultRegion}
}

// FindContact searches the phone number variants in order. Most connectors stop
// at the first variant with a match; UnionMatcher connectors see every variant.
func (s *ContactService) FindContact(ctx context.Context, sess *Session, params FindContactParams) (*ContactResult, error) {
	number := phone.Repair(params.PhoneNumber)
	if number == "" {
		return nil, apperrors.MissingRequired("phoneNumber")
	}

	variants := phone.Variants(number, phone.Options{
		OverridingFormats: phone.SplitFormats(params.OverridingFormat),
		IsExtension:       params.IsExtension,
		DefaultRegion:     s.defaultRegion,
	})

	union := false
	if m, ok := sess.Connector.(connector.UnionMatcher); ok {
		union = m.MatchesAllVariants()
	}

	var matched []model.ContactCandidate
	for _, variant := range variants {
		found, err := sess.Connector.FindContact(ctx, connector.FindContactRequest{
			User:        sess.User,
			AuthHeader:  sess.AuthHeader,
			PhoneNumber: variant,
			IsExtension: params.IsExtension,
		})
		if err != nil {
			return &ContactResult{
				Successful:    false,
				ReturnMessage: connector.HandleAPIError(err, sess.Connector.Platform(), connector.OpFindContact),
			}, nil
		}
		matched = connector.MergeContacts(matched, found...)
		if len(matched) > 0 && !union {
			break
		}
	}

	log.Debug().
		Str("userId", sess.User.ID).
		Int("variants", len(variants)).
		Int("matches", len(matched)).
		Msg("contact lookup")

	if len(matched) == 0 {
		return &ContactResult{
			Successful:    false,
			Contacts:      []model.ContactCandidate{model.NewContactSentinel()},
			ReturnMessage: contactNotFound(number),
		}, nil
	}

	return &ContactResult{
		Successful: true,
		Contacts:   append(matched, model.NewContactSentinel()),
	}, nil
}

func (s *ContactService) CreateContact(ctx context.Context, sess *Session, params CreateContactParams) (*CreateContactResult, error) {
	number := phone.Repair(params.PhoneNumber)
	if number == "" {
		return nil, apperrors.MissingRequired("phoneNumber")
	}
	name := strings.TrimSpace(params.NewContactName)
	if name == "" {
		return nil, apperrors.MissingRequired("newContactName")
	}
	if params.NewContactType != "" {
		if typer, ok := sess.Connector.(connector.ContactTyper); ok && !util.IsValidEnum(params.NewContactType, typer.ContactTypes()) {
			return nil, apperrors.InvalidInput("newContactType", fmt.Sprintf("must be one of %s", strings.Join(typer.ContactTypes(), ", ")))
		}
	}

	created, err := sess.Connector.CreateContact(ctx, connector.CreateContactRequest{
		User:        sess.User,
		AuthHeader:  sess.AuthHeader,
		PhoneNumber: number,
		Name:        name,
		Type:        params.NewContactType,
	})
	if err != nil {
		return &CreateContactResult{
			Successful:    false,
			ReturnMessage: connector.HandleAPIError(err, sess.Connector.Platform(), connector.OpCreateContact),
		}, nil
	}

	log.Info().
		Str("userId", sess.User.ID).
		Str("contactId", created.ID).
		Msg("crm contact created")

	return &CreateContactResult{
		Successful:    true,
		Contact:       created,
		ReturnMessage: model.SuccessMessage(fmt.Sprintf("Contact created: %s", created.Name)),
	}, nil
}

func contactNotFound(number string) *model.ReturnMessage {
	return model.WarningMessage(fmt.Sprintf("Contact not found for number %s", number))
}
