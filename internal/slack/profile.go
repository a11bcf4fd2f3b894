package slack

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-resty/resty/v2"

	"slacktranslator/internal/memo"
	logx "slacktranslator/pkg/logx"
)

// OpProfile is the memo operation name for profile lookups.
const OpProfile = "slack.profile"

// UserProfile is the subset of a Slack profile used to impersonate a user.
type UserProfile struct {
	RealName  string `json:"real_name"`
	AvatarURL string `json:"avatar_url"`
}

// ProfileResolver maps a user id to its display name and avatar.
type ProfileResolver struct {
	http  *resty.Client
	url   string
	token string
	memo  *memo.Memoizer
	log   logx.Logger
}

// NewProfileResolver builds a resolver. m may be nil to disable memoization.
func NewProfileResolver(opt Options, m *memo.Memoizer, log logx.Logger) *ProfileResolver {
	opt = opt.withDefaults()
	return &ProfileResolver{
		http:  newHTTP(opt),
		url:   opt.APIURL + "/users.profile.get",
		token: opt.Token,
		memo:  m,
		log:   log,
	}
}

type profileResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Profile *struct {
		RealName    string `json:"real_name"`
		DisplayName string `json:"display_name"`
		Image48     string `json:"image_48"`
		Image72     string `json:"image_72"`
		Image192    string `json:"image_192"`
	} `json:"profile"`
}

// Resolve returns the profile for userID. Cached entries are keyed by the user
// id alone.
func (r *ProfileResolver) Resolve(ctx context.Context, userID string) (UserProfile, error) {
	if r.memo == nil {
		return r.fetch(ctx, userID)
	}
	return memo.Call(ctx, r.memo, OpProfile, []any{userID}, func(ctx context.Context) (UserProfile, error) {
		return r.fetch(ctx, userID)
	})
}

func (r *ProfileResolver) fetch(ctx context.Context, userID string) (UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return UserProfile{}, &ProfileLookupError{UserID: userID, Err: errors.New("empty user id")}
	}

	req := r.http.R().SetContext(ctx).SetQueryParam("user", userID)
	if r.token != "" {
		req.SetAuthToken(r.token)
	}
	resp, err := req.Get(r.url)
	if err != nil {
		return UserProfile{}, &ProfileLookupError{UserID: userID, Err: err}
	}
	if resp.IsError() {
		return UserProfile{}, &ProfileLookupError{UserID: userID, Status: resp.StatusCode(), Err: errors.New(resp.Status())}
	}

	var body profileResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return UserProfile{}, &ProfileLookupError{UserID: userID, Status: resp.StatusCode(), Err: err}
	}
	if !body.OK {
		code := body.Error
		if code == "" {
			code = "not_ok"
		}
		return UserProfile{}, &ProfileLookupError{UserID: userID, Status: resp.StatusCode(), Code: code}
	}
	if body.Profile == nil {
		return UserProfile{}, &ProfileLookupError{UserID: userID, Status: resp.StatusCode(), Code: "user_not_found"}
	}

	p := body.Profile
	out := UserProfile{RealName: p.RealName, AvatarURL: firstNonEmpty(p.Image72, p.Image48, p.Image192)}
	if out.RealName == "" {
		out.RealName = p.DisplayName
	}
	r.log.Debug("profile resolved", logx.String("user_id", userID), logx.String("name", out.RealName))
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
