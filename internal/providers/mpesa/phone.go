package mpesa

import (
	"regexp"
	"strings"

	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
)

var phonePattern = regexp.MustCompile(`^254[0-9]{9}$`)

// NormalizePhone canonicalizes a Kenyan MSISDN to the 254XXXXXXXXX form the
// Daraja API requires. Accepted inputs: "07XXXXXXXX", "+2547XXXXXXXX",
// "2547XXXXXXXX" and whitespace-padded variants.
func NormalizePhone(raw string) (string, error) {
	phone := strings.ReplaceAll(raw, " ", "")
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, "0"):
		phone = "254" + phone[1:]
	case !strings.HasPrefix(phone, "254"):
		phone = "254" + phone
	}

	if !phonePattern.MatchString(phone) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must be a valid Kenyan MSISDN")
	}
	return phone, nil
}
