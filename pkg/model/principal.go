package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Principal is who requests a system.
//
// Tokens are carried as they are, and never inspected.
type Principal struct {
	Username     string `json:"username" validate:"required"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Host         string `json:"host,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParsePrincipal reads principal from its JSON text.
func ParsePrincipal(text string) (Principal, error) {
	p := Principal{}
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Principal{}, fmt.Errorf("principal is not a JSON object: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return Principal{}, fmt.Errorf("bad principal: %w", err)
	}
	return p, nil
}

// String returns p as JSON text.
func (p Principal) String() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// allHyphens replaces "_" and "." with "-".
func allHyphens(s string) string {
	return strings.NewReplacer("_", "-", ".", "-").Replace(s)
}
