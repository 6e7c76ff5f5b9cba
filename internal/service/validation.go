package service

import (
	"regexp"

	"creditledger/pkg/apperr"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// parseID 只接受标准 36 位带连字符的 UUID
func parseID(id string) (uuid.UUID, error) {
	if len(id) != 36 {
		return uuid.Nil, apperr.InvalidArgument("invalid customer ID format")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("invalid customer ID format")
	}
	return parsed, nil
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}
