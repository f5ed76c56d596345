package entity

import "encoding/json"

// User is the account-level identity returned by the vendor login
// endpoint. All fields are opaque server-issued strings; Token is the
// session credential for calls against the account-level API.
//
// A User is created on successful login and never mutated afterwards —
// a fresh login produces a fresh User.
type User struct {
	UserID    string `json:"userId"`
	Telephone string `json:"telephone"`
	Token     string `json:"token"`
	RealName  string `json:"realName"`
}

// UserFromResponse builds a User from a decoded login response.
//
// The vendor API returns the user fields either flat or nested under
// an "o" object depending on deployment; both shapes are accepted and
// missing fields default to empty strings.
func UserFromResponse(resp map[string]any) User {
	nested, _ := resp["o"].(map[string]any)
	return User{
		UserID:    stringField(resp, nested, "userId"),
		Telephone: stringField(resp, nested, "userTel"),
		Token:     stringField(resp, nested, "token"),
		RealName:  stringField(resp, nested, "realName"),
	}
}

// UserFromJSON reconstructs a User from its persisted JSON form.
func UserFromJSON(data []byte) (User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// ToJSON serialises the User for persistence.
func (u User) ToJSON() ([]byte, error) {
	return json.Marshal(u)
}

// stringField extracts a string field, preferring the flat map and
// falling back to the nested one. Non-string values yield "".
func stringField(flat, nested map[string]any, key string) string {
	if v, ok := flat[key].(string); ok && v != "" {
		return v
	}
	if nested != nil {
		if v, ok := nested[key].(string); ok {
			return v
		}
	}
	return ""
}
