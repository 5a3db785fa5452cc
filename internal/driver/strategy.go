package driver

import (
	"net/url"
	"strings"

	"github.com/user/deskhand/internal/browser"
)

// LoginForm locates a username/password form that can be filled
// automatically when credentials are configured.
type LoginForm struct {
	Username browser.Chain
	Password browser.Chain
	Submit   browser.Chain
}

// Strategy is the per-channel table of URLs and selector chains. The driver
// logic is shared; only the table differs between channels.
type Strategy struct {
	Name    string
	HomeURL string
	// ArchivedURL, when set, is navigated to instead of clicking
	// ArchivedButton.
	ArchivedURL string

	LoggedIn  browser.Chain
	LoginForm *LoginForm

	ConversationRows browser.Chain
	RowTitle         browser.Chain
	RowPreview       browser.Chain
	RowUnread        browser.Chain

	ArchivedButton browser.Chain
	BackButton     browser.Chain

	SearchBox     browser.Chain
	SearchResults browser.Chain
	// ExcludedResults are case-insensitive substrings of search results
	// that must never be picked, such as assistant suggestion rows.
	ExcludedResults []string

	InputReady         browser.Chain
	InvalidTarget      browser.Chain
	InvalidTargetError string

	// DirectURL builds a deep link that opens a chat with a phone number.
	// Nil means the channel only supports name targets.
	DirectURL func(phone, text string) string
}

// WhatsApp returns the WhatsApp Web strategy.
func WhatsApp() Strategy {
	return Strategy{
		Name:    "whatsapp",
		HomeURL: "https://web.whatsapp.com",
		LoggedIn: browser.Chain{
			`[data-testid="chat-list"]`,
			`#pane-side`,
			`[data-icon="new-chat-outline"]`,
			`div[aria-label="Chat list"]`,
			`div[role="grid"]`,
		},
		ConversationRows: browser.Chain{`#pane-side div[role="row"]`, `div[role="row"]`, `div[role="listitem"]`},
		RowTitle:         browser.Chain{`span[dir="auto"][title]`, `[dir="auto"][title]`},
		RowPreview:       browser.Chain{`div[data-testid="cell-frame-secondary"] span[dir="ltr"]`, `span[dir="auto"]`},
		RowUnread:        browser.Chain{`[aria-label*="unread message"]`, `span[data-testid="icon-unread-count"]`},
		ArchivedButton: browser.Chain{
			`button[aria-label="Archived"]`,
			`[data-testid="archived"]`,
			`span[data-icon="archived"]`,
			`div[title="Archived"]`,
		},
		BackButton:      browser.Chain{`[data-icon="back"]`, `[data-testid="back"]`, `button[aria-label="Back"]`},
		SearchBox:       browser.Chain{`div[contenteditable="true"][data-tab="3"]`, `[data-testid="chat-list-search"]`, `div[aria-label="Search input textbox"]`},
		SearchResults:   browser.Chain{`#pane-side div[role="listitem"]`, `#pane-side div[role="row"]`},
		ExcludedResults: []string{"Meta AI", "Ask Meta AI"},
		InputReady: browser.Chain{
			`footer div[contenteditable="true"]`,
			`div[contenteditable="true"][data-tab="10"]`,
			`div[aria-label="Type a message"]`,
		},
		InvalidTarget:      browser.Chain{`div[data-testid="popup-controls-ok"]`, `div[data-animate-modal-popup="true"]`},
		InvalidTargetError: "Invalid WhatsApp number.",
		DirectURL: func(phone, text string) string {
			return "https://web.whatsapp.com/send?phone=" + strings.TrimPrefix(phone, "+") + "&text=" + url.QueryEscape(text)
		},
	}
}

// LinkedIn returns the LinkedIn messaging strategy.
func LinkedIn() Strategy {
	return Strategy{
		Name:        "linkedin",
		HomeURL:     "https://www.linkedin.com/messaging/",
		ArchivedURL: "https://www.linkedin.com/messaging/?filter=archived",
		LoggedIn:    browser.Chain{`#global-nav`, `nav.global-nav`, `.global-nav__me`},
		LoginForm: &LoginForm{
			Username: browser.Chain{`#username`, `input[name="session_key"]`},
			Password: browser.Chain{`#password`, `input[name="session_password"]`},
			Submit:   browser.Chain{`button[type="submit"]`, `.login__form_action_container button`},
		},
		ConversationRows: browser.Chain{`li.msg-conversation-listitem`, `.msg-conversations-container__conversations-list li`},
		RowTitle:         browser.Chain{`.msg-conversation-listitem__participant-names`, `h3.msg-conversation-card__participant-names`},
		RowPreview:       browser.Chain{`.msg-conversation-card__message-snippet`, `p.msg-conversation-card__message-snippet-body`},
		RowUnread:        browser.Chain{`.msg-conversation-card__unread-count`, `.notification-badge__count`},
		SearchBox:        browser.Chain{`input#search-conversations`, `input[placeholder="Search messages"]`},
		SearchResults:    browser.Chain{`li.msg-conversation-listitem`},
		ExcludedResults:  []string{"Sponsored", "LinkedIn Offer"},
		InputReady: browser.Chain{
			`div.msg-form__contenteditable[contenteditable="true"]`,
			`div[role="textbox"][contenteditable="true"]`,
		},
		InvalidTarget:      browser.Chain{`.msg-form__error`, `.artdeco-inline-feedback--error`},
		InvalidTargetError: "Invalid LinkedIn recipient.",
	}
}

// excluded reports whether text contains one of the stop words.
func (s Strategy) excluded(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range s.ExcludedResults {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
