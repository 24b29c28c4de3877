package audit

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"

	"github.com/mssola/useragent"
)

// Correlation keys looked up in path params, body and query.
const (
	KeyResourceID = "id"
	KeyBuyerID    = "buyerId"
	KeyVehicleID  = "vehicleId"
	KeyDealID     = "dealId"
)

// User is the authenticated caller, if any.
type User struct {
	ID    string
	Email string
}

// Invocation is the request context captured before an audited operation runs.
type Invocation struct {
	Method    string
	URL       string
	ClientIP  string
	UserAgent string
	RequestID string

	PathParams map[string]string
	Query      url.Values
	// Body holds the decoded top-level body fields. Values are only used to
	// resolve correlation ids and are never copied into a record.
	Body map[string]any

	User *User
}

// actor returns the user id and email, falling back to the anonymous sentinels.
func (inv Invocation) actor() (string, string) {
	userID, email := AnonymousUserID, UnknownUserEmail
	if inv.User != nil {
		if inv.User.ID != "" {
			userID = inv.User.ID
		}
		if inv.User.Email != "" {
			email = inv.User.Email
		}
	}
	return userID, email
}

func (inv Invocation) userAgent() string {
	if inv.UserAgent == "" {
		return UnknownUserAgent
	}
	return inv.UserAgent
}

// lookupID resolves key from path params, then body, then query. The first
// non-empty value wins.
func (inv Invocation) lookupID(key string) string {
	if v := inv.PathParams[key]; v != "" {
		return v
	}
	if v := bodyString(inv.Body[key]); v != "" {
		return v
	}
	return inv.Query.Get(key)
}

type resourceIDs struct {
	resource string
	buyer    string
	vehicle  string
	deal     string
}

func (inv Invocation) resourceIDs() resourceIDs {
	return resourceIDs{
		resource: inv.lookupID(KeyResourceID),
		buyer:    inv.lookupID(KeyBuyerID),
		vehicle:  inv.lookupID(KeyVehicleID),
		deal:     inv.lookupID(KeyDealID),
	}
}

// sanitized builds the metadata stored with a record: params and query as
// received, body key names only.
func (inv Invocation) sanitized() Sanitized {
	params := make(map[string]string, len(inv.PathParams))
	for k, v := range inv.PathParams {
		params[k] = v
	}
	query := make(map[string][]string, len(inv.Query))
	for k, v := range inv.Query {
		query[k] = append([]string{}, v...)
	}
	return Sanitized{
		Params:   params,
		Query:    query,
		BodyKeys: BodyKeys(inv.Body),
		Client:   parseClient(inv.UserAgent),
	}
}

// BodyKeys returns the sorted top-level key names of body. It never returns nil.
func BodyKeys(body map[string]any) []string {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bodyString converts scalar body values to their string form. Objects,
// arrays and null do not identify a resource and yield "".
func bodyString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func parseClient(raw string) *ClientInfo {
	if raw == "" {
		return nil
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return &ClientInfo{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}
