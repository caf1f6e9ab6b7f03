package twitter

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials are the four OAuth 1.0a user-context secrets.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

func (c Credentials) complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// Signer produces OAuth 1.0a HMAC-SHA1 Authorization headers.
type Signer struct {
	Creds Credentials
	Nonce func() string
	Now   func() time.Time
}

func (s Signer) nonce() string {
	if s.Nonce != nil {
		return s.Nonce()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Authorization returns the header value for a request. extra holds query
// or form parameters that take part in the signature; JSON bodies do not.
func (s Signer) Authorization(method, rawURL string, extra url.Values) (string, error) {
	oauth := map[string]string{
		"oauth_consumer_key":     s.Creds.ConsumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.Creds.AccessToken,
		"oauth_version":          "1.0",
	}
	sig, err := s.signature(method, rawURL, oauth, extra)
	if err != nil {
		return "", err
	}
	oauth["oauth_signature"] = sig

	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+`="`+percentEncode(oauth[k])+`"`)
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

func (s Signer) signature(method, rawURL string, oauth map[string]string, extra url.Values) (string, error) {
	base, err := baseString(method, rawURL, oauth, extra)
	if err != nil {
		return "", err
	}
	key := percentEncode(s.Creds.ConsumerSecret) + "&" + percentEncode(s.Creds.AccessSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func baseString(method, rawURL string, oauth map[string]string, extra url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	type pair struct{ k, v string }
	var pairs []pair
	for k, v := range oauth {
		pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
	}
	for _, vals := range []url.Values{u.Query(), extra} {
		for k, vs := range vals {
			for _, v := range vs {
				pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	params := make([]string, 0, len(pairs))
	for _, p := range pairs {
		params = append(params, p.k+"="+p.v)
	}

	endpoint := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()
	return strings.ToUpper(method) + "&" + percentEncode(endpoint) + "&" + percentEncode(strings.Join(params, "&")), nil
}

// percentEncode escapes everything except RFC 3986 unreserved characters.
func percentEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String()
}
