package notify

import "context"

type (
	// EmailSender delivers one email message.
	EmailSender interface {
		Send(to, subject, body string) error
	}

	// TextSender delivers one short text message.
	TextSender interface {
		SendText(ctx context.Context, to, body string) error
	}

	// Localizer renders a translated template with its placeholders filled.
	Localizer interface {
		Get(lang, key string, params map[string]interface{}) string
	}
)
