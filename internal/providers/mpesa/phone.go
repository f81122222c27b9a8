package mpesa

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// NormalizePhone parses raw in the receiver's country and returns the E.164
// digits without the leading '+', which is what the B2C PartyB expects.
// A number that does not parse or is not valid for its region is a
// permanent ValidationError.
func NormalizePhone(raw, country string) (string, error) {
	region := strings.ToUpper(strings.TrimSpace(country))
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", transfer.ValidationError{Field: "receiver.phone", Reason: "is not a phone number: " + err.Error()}
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", transfer.ValidationError{Field: "receiver.phone", Reason: "is not valid for " + region}
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}
