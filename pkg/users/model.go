package users

import (
	"time"

	"neuralsalvage/pkg/beta"
)

const (
	TierFree = "free"
	TierPro  = "pro"
)

type User struct {
	ID                   int64      `json:"id"`
	UUID                 string     `json:"uuid"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	ProfilePicURL        string     `json:"profile_pic_url"`
	Tier                 string     `json:"tier"`
	StripeCustomerID     string     `json:"-"`
	StripeSubscriptionID string     `json:"-"`
	StripeAccountID      string     `json:"stripe_account_id,omitempty"`
	Usage                Usage      `json:"usage"`
	BetaFeatures         []string   `json:"beta_features"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// IsSubscriber reports whether the user pays for a plan.
// BetaMember is the view of u the beta checker decides on.
func (u User) BetaMember() beta.Member {
	return beta.Member{Email: u.Email, Verified: u.VerifiedAt != nil, Flags: u.BetaFeatures}
}

func (u User) IsSubscriber() bool {
	return u.Tier != "" && u.Tier != TierFree
}

// Usage counts metered actions in the current billing period.
type Usage struct {
	Uploads     int       `json:"uploads"`
	Analyses    int       `json:"analyses"`
	Mints       int       `json:"mints"`
	PeriodStart time.Time `json:"period_start"`
}

// UsageKind names a metered counter column.
type UsageKind string

const (
	UsageUploads  UsageKind = "uploads_used"
	UsageAnalyses UsageKind = "analyses_used"
	UsageMints    UsageKind = "mints_used"
)

type Limits struct {
	Uploads  int `json:"uploads"`
	Analyses int `json:"analyses"`
}

var TierLimits = map[string]Limits{
	TierFree: {Uploads: 25, Analyses: 10},
	TierPro:  {Uploads: 1000, Analyses: 500},
}

// LimitsFor falls back to the free tier for unknown tiers.
func LimitsFor(tier string) Limits {
	if l, ok := TierLimits[tier]; ok {
		return l
	}
	return TierLimits[TierFree]
}

// Profile is the public view of another user.
type Profile struct {
	UUID          string    `json:"uuid"`
	Name          string    `json:"name"`
	ProfilePicURL string    `json:"profile_pic_url"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{UUID: u.UUID, Name: u.Name, ProfilePicURL: u.ProfilePicURL, CreatedAt: u.CreatedAt}
}
