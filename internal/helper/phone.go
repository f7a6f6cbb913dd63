package helper

import (
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

var (
	validPhoneChars = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
	nonDigits       = regexp.MustCompile(`[^\d]`)
)

// ParseRecipient accepts a full JID ("628123@s.whatsapp.net", "1203...@g.us")
// or a phone number. A national number starting with 0 gets defaultCountry
// in place of the leading zero.
func ParseRecipient(to, defaultCountry string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.JID{}, fmt.Errorf("recipient is empty")
	}

	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid jid: %w", err)
		}
		return jid, nil
	}

	if !validPhoneChars.MatchString(to) {
		return types.JID{}, fmt.Errorf("invalid phone number format: contains invalid characters")
	}

	cleaned := nonDigits.ReplaceAllString(to, "")
	if strings.HasPrefix(cleaned, "0") && defaultCountry != "" {
		cleaned = defaultCountry + strings.TrimLeft(cleaned, "0")
	}

	// E.164 allows at most 15 digits
	if len(cleaned) < 8 || len(cleaned) > 15 {
		return types.JID{}, fmt.Errorf("invalid phone number length")
	}

	return types.JID{
		User:   cleaned,
		Server: types.DefaultUserServer,
	}, nil
}

func ExtractPhoneFromJID(jid string) string {
	// "6285148107612:43@s.whatsapp.net" -> "6285148107612"
	atSplit := strings.SplitN(jid, "@", 2)
	beforeAt := atSplit[0]
	colonSplit := strings.SplitN(beforeAt, ":", 2)
	return colonSplit[0]
}
