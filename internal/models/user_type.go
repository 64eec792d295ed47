package models

import (
	"fmt"
	"strings"
)

// UserType is the account class stored on a user row. The set is closed.
type UserType string

const (
	UserTypeMember  UserType = "member"
	UserTypeProctor UserType = "proctor"
	UserTypeAdmin   UserType = "admin"
)

// ParseUserType normalises a stored or supplied value into a UserType.
func ParseUserType(value string) (UserType, error) {
	switch t := UserType(strings.ToLower(strings.TrimSpace(value))); t {
	case UserTypeMember, UserTypeProctor, UserTypeAdmin:
		return t, nil
	default:
		return "", fmt.Errorf("models: unknown user type %q", value)
	}
}

// CanJoinRelay reports whether accounts of this type may open a relay connection.
func (t UserType) CanJoinRelay() bool {
	switch t {
	case UserTypeMember, UserTypeProctor:
		return true
	default:
		return false
	}
}

func (t UserType) String() string {
	return string(t)
}
