package discover

import (
	"errors"
	"fmt"
	"strings"

	"urconnect/internal/dom"
)

var (
	// ErrTokenNotFound means the login page carried no usable anti-forgery token.
	ErrTokenNotFound = errors.New("token not found on login form")
	// ErrCredentialFieldsNotFound means the login form lacks a username or password input.
	ErrCredentialFieldsNotFound = errors.New("credential fields not found on login form")
)

// CredentialFields names the login form inputs that take the username and
// the password.
type CredentialFields struct {
	Username string
	Password string
}

// FindToken returns the value of the input named field.
func FindToken(doc *dom.Document, field string) (string, error) {
	in, ok := doc.First(fmt.Sprintf("input[name=%q]", field))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTokenNotFound, field)
	}
	v, _ := in.Attr("value")
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrTokenNotFound, field)
	}
	return v, nil
}

// FindCredentialFields scans inputs in document order. The first
// type=password input names the password field and the first type=text or
// type=email input names the username field.
func FindCredentialFields(doc *dom.Document) (CredentialFields, error) {
	var fields CredentialFields
	for _, in := range doc.Select("input") {
		name, _ := in.Attr("name")
		if name == "" {
			continue
		}
		switch strings.ToLower(in.AttrOr("type", "")) {
		case "password":
			if fields.Password == "" {
				fields.Password = name
			}
		case "text", "email":
			if fields.Username == "" {
				fields.Username = name
			}
		}
	}

	var missing []string
	if fields.Username == "" {
		missing = append(missing, "username")
	}
	if fields.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fields, fmt.Errorf("%w: missing %s", ErrCredentialFieldsNotFound, strings.Join(missing, " and "))
	}
	return fields, nil
}
