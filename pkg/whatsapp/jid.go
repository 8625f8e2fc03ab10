package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// WhatsAppDecomposeJID strips the server part and a leading '+' from id.
func WhatsAppDecomposeJID(id string) string {
	if i := strings.IndexRune(id, '@'); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimSpace(id)
	return strings.TrimPrefix(id, "+")
}

// WhatsAppComposeUserJID turns a phone number (optionally with '+', spaces,
// dashes or a server suffix) into a personal JID.
func WhatsAppComposeUserJID(number string) (types.JID, error) {
	if strings.HasSuffix(number, "@"+types.GroupServer) {
		return types.EmptyJID, ErrInvalidNumber
	}
	raw := WhatsAppDecomposeJID(number)
	digits := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '(' || r == ')':
			return -1
		}
		return 'x'
	}, raw)
	if len(digits) < 5 || len(digits) > 20 || strings.ContainsRune(digits, 'x') {
		return types.EmptyJID, ErrInvalidNumber
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// WhatsAppComposeGroupJID accepts a bare group id or a full "<id>@g.us".
func WhatsAppComposeGroupJID(id string) (types.JID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.EmptyJID, ErrInvalidGroupID
	}
	if strings.ContainsRune(id, '@') {
		parsed, err := types.ParseJID(id)
		if err != nil || parsed.Server != types.GroupServer {
			return types.EmptyJID, ErrInvalidGroupID
		}
		return parsed, nil
	}
	for _, r := range id {
		if (r < '0' || r > '9') && r != '-' {
			return types.EmptyJID, ErrInvalidGroupID
		}
	}
	return types.NewJID(id, types.GroupServer), nil
}

// WhatsAppComposeJID resolves either a group or a personal recipient.
func WhatsAppComposeJID(id string) (types.JID, error) {
	if strings.HasSuffix(id, "@"+types.GroupServer) {
		return WhatsAppComposeGroupJID(id)
	}
	return WhatsAppComposeUserJID(id)
}

func composeUserJIDs(numbers []string) ([]types.JID, error) {
	jids := make([]types.JID, 0, len(numbers))
	for _, n := range numbers {
		jid, err := WhatsAppComposeUserJID(n)
		if err != nil {
			return nil, err
		}
		jids = append(jids, jid)
	}
	return jids, nil
}
