package whatsapp

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ButtonType string

const (
	ButtonReply ButtonType = "reply"
	ButtonURL   ButtonType = "url"
	ButtonCall  ButtonType = "call"
)

var ErrInvalidButton = errors.New("invalid button")

// Button is one template button attached to a media message. Exactly one of
// ID, URL or PhoneNumber is meaningful depending on Type.
type Button struct {
	Type        ButtonType `json:"type"`
	Index       int        `json:"index"`
	DisplayText string     `json:"displayText"`
	ID          string     `json:"id,omitempty"`
	URL         string     `json:"url,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
}

func (b Button) Validate() error {
	if strings.TrimSpace(b.DisplayText) == "" {
		return fmt.Errorf("%w: button %d has no displayText", ErrInvalidButton, b.Index)
	}
	switch b.Type {
	case ButtonReply:
		if strings.TrimSpace(b.ID) == "" {
			return fmt.Errorf("%w: reply button %d needs an id", ErrInvalidButton, b.Index)
		}
	case ButtonURL:
		if !strings.HasPrefix(b.URL, "http://") && !strings.HasPrefix(b.URL, "https://") {
			return fmt.Errorf("%w: url button %d needs an http(s) url", ErrInvalidButton, b.Index)
		}
	case ButtonCall:
		if WhatsAppDecomposeJID(b.PhoneNumber) == "" {
			return fmt.Errorf("%w: call button %d needs a phoneNumber", ErrInvalidButton, b.Index)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidButton, b.Type)
	}
	return nil
}

// ValidateButtons checks every button and returns them ordered by Index.
func ValidateButtons(buttons []Button) ([]Button, error) {
	out := make([]Button, len(buttons))
	copy(out, buttons)
	for _, b := range out {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (b Button) line() string {
	switch b.Type {
	case ButtonURL:
		return fmt.Sprintf("%s: %s", b.DisplayText, b.URL)
	case ButtonCall:
		return fmt.Sprintf("%s: +%s", b.DisplayText, WhatsAppDecomposeJID(b.PhoneNumber))
	}
	return fmt.Sprintf("%s (%s)", b.DisplayText, b.ID)
}

// RenderCaption folds the footer and buttons into the caption text.
func RenderCaption(caption string, footer string, buttons []Button) string {
	var sb strings.Builder
	sb.WriteString(caption)

	if len(buttons) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		for i, b := range buttons {
			sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, b.line()))
		}
	}

	if footer = strings.TrimSpace(footer); footer != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("_" + footer + "_")
	}

	return sb.String()
}
