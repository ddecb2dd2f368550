package auth

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Callback holds the parameters an OAuth or magic link redirect lands with.
// Parameters are read from the fragment first, then the query.
type Callback struct {
	Error            string
	ErrorDescription string
	AccessToken      string
	Code             string
	Type             string
}

// ParseCallback reads the callback parameters of rawURL and returns the URL with the
// fragment and the callback parameters stripped.
func ParseCallback(rawURL string) (Callback, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Callback{}, "", errors.Wrap(err, "failed to parse callback url")
	}
	fragment, err := url.ParseQuery(strings.TrimPrefix(u.Fragment, "#"))
	if err != nil {
		fragment = url.Values{}
	}
	query := u.Query()
	get := func(key string) string {
		if v := fragment.Get(key); v != "" {
			return v
		}
		return query.Get(key)
	}
	cb := Callback{
		Error:            get("error"),
		ErrorDescription: get("error_description"),
		AccessToken:      get("access_token"),
		Code:             get("code"),
		Type:             get("type"),
	}

	for _, key := range []string{"error", "error_code", "error_description", "code", "state"} {
		query.Del(key)
	}
	u.RawQuery = query.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return cb, u.String(), nil
}

// Empty reports whether the URL carried no callback at all.
func (c Callback) Empty() bool {
	return c.Error == "" && c.AccessToken == "" && c.Code == ""
}
