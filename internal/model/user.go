package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// User is the stored credential for one CRM user on one platform.
type User struct {
	ID                     string     `db:"id" json:"id"`
	Platform               string     `db:"platform" json:"platform"`
	Hostname               string     `db:"hostname" json:"hostname"`
	Name                   string     `db:"name" json:"name"`
	TimezoneName           string     `db:"timezone_name" json:"timezoneName"`
	TimezoneOffset         string     `db:"timezone_offset" json:"timezoneOffset"`
	AccessToken            string     `db:"access_token" json:"-"`
	RefreshToken           string     `db:"refresh_token" json:"-"`
	TokenExpiry            *time.Time `db:"token_expiry" json:"-"`
	PlatformAdditionalInfo JSONB      `db:"platform_additional_info" json:"platformAdditionalInfo,omitempty"`
	RCUserNumber           string     `db:"rc_user_number" json:"rcUserNumber"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updatedAt"`
}

// AdditionalInfo decodes the platform blob into a string map.
func (u *User) AdditionalInfo() map[string]string {
	info := map[string]string{}
	if len(u.PlatformAdditionalInfo) == 0 {
		return info
	}
	var raw map[string]any
	if err := json.Unmarshal(u.PlatformAdditionalInfo, &raw); err != nil {
		return info
	}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			info[k] = val
		case nil:
		default:
			info[k] = fmt.Sprint(val)
		}
	}
	return info
}

// PlatformUserID builds the credential key from a CRM user id.
func PlatformUserID(crmUserID, platform string) string {
	return fmt.Sprintf("%s-%s", crmUserID, platform)
}

type UpsertUserParams struct {
	ID                     string
	Platform               string
	Hostname               string
	Name                   string
	TimezoneName           string
	TimezoneOffset         string
	AccessToken            string
	RefreshToken           string
	TokenExpiry            *time.Time
	PlatformAdditionalInfo JSONB
	RCUserNumber           string
}

type UpdateTokensParams struct {
	AccessToken            string
	RefreshToken           string
	TokenExpiry            *time.Time
	PlatformAdditionalInfo JSONB
}
