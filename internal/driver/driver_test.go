package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/user/deskhand/internal/browser"
	"github.com/user/deskhand/internal/browser/browsertest"
	"github.com/user/deskhand/internal/types"
)

const (
	waLoggedIn = `#pane-side`
	waRows     = `#pane-side div[role="row"]`
	waInput    = `footer div[contenteditable="true"]`
	waPopup    = `div[data-testid="popup-controls-ok"]`
	waSearch   = `div[contenteditable="true"][data-tab="3"]`
	waResults  = `#pane-side div[role="listitem"]`
)

func newTestDriver(t *testing.T, st Strategy, page *browsertest.Page) (*Driver, *browsertest.Launcher) {
	t.Helper()
	l := &browsertest.Launcher{Page: page}
	d := New(st, Options{
		Launcher:                l,
		Profiles:                browser.NewProfileStore(t.TempDir()),
		Headless:                true,
		LoginTimeout:            300 * time.Millisecond,
		InteractiveLoginTimeout: 300 * time.Millisecond,
		SendTimeout:             300 * time.Millisecond,
		RowsTimeout:             50 * time.Millisecond,
		PollInterval:            5 * time.Millisecond,
		ScreenshotDir:           t.TempDir(),
		Retry:                   &browser.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
		Logger:                  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return d, l
}

func waRow(title, preview string) *browsertest.Element {
	return browsertest.NewElement(title+" "+preview).
		WithChild(`span[dir="auto"][title]`, browsertest.NewElement(title).WithAttr("title", title)).
		WithChild(`span[dir="auto"]`, browsertest.NewElement(title), browsertest.NewElement(preview))
}

func loggedInWhatsApp() *browsertest.Page {
	return browsertest.NewPage().Set(waLoggedIn, browsertest.NewElement(""))
}

func TestCheckMessages_KeywordFilter(t *testing.T) {
	page := loggedInWhatsApp().
		Set(waRows, waRow("Alice", "urgent: call me"), waRow("Bob", "lunch?"))
	d, l := newTestDriver(t, WhatsApp(), page)

	res := d.CheckMessages(context.Background(), types.CheckOptions{Keywords: []string{"urgent"}})
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d: %+v", len(res.Messages), res.Messages)
	}
	m := res.Messages[0]
	if m.Title != "Alice" || m.Preview != "urgent: call me" {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Source != types.SourceMain {
		t.Errorf("expected source main, got %s", m.Source)
	}
	if len(m.MatchedKeywords) != 1 || m.MatchedKeywords[0] != "urgent" {
		t.Errorf("unexpected matched keywords %v", m.MatchedKeywords)
	}
	if !page.Closed() {
		t.Error("browser must be closed after the operation")
	}
	if l.Launches() != 1 {
		t.Errorf("expected 1 launch, got %d", l.Launches())
	}
	if !l.LastOptions().Headless {
		t.Error("expected headless launch for checks")
	}
	if got := page.Navigations(); len(got) == 0 || got[0] != "https://web.whatsapp.com" {
		t.Errorf("expected home navigation first, got %v", got)
	}
}

func TestCheckMessages_IncludeArchived(t *testing.T) {
	page := loggedInWhatsApp()
	mainRows := []*browsertest.Element{waRow("Alice", "urgent: call me"), waRow("Bob", "lunch?")}
	page.Set(waRows, mainRows...)

	back := browsertest.NewElement("back").OnClick(func() {
		page.Set(waRows, mainRows...)
	})
	archived := browsertest.NewElement("Archived").OnClick(func() {
		page.Set(waRows, waRow("Carol", "urgent invoice"))
		page.Set(`[data-icon="back"]`, back)
	})
	page.Set(`button[aria-label="Archived"]`, archived)

	d, _ := newTestDriver(t, WhatsApp(), page)
	res := d.CheckMessages(context.Background(), types.CheckOptions{Keywords: []string{"urgent"}, IncludeArchived: true})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", res.Messages)
	}
	if res.Messages[0].Title != "Alice" || res.Messages[0].Source != types.SourceMain {
		t.Errorf("unexpected first message %+v", res.Messages[0])
	}
	if res.Messages[1].Title != "Carol" || res.Messages[1].Source != types.SourceArchived {
		t.Errorf("unexpected archived message %+v", res.Messages[1])
	}
	if archived.Clicks() != 1 || back.Clicks() != 1 {
		t.Errorf("expected archived and back to be clicked once, got %d/%d", archived.Clicks(), back.Clicks())
	}
}

func TestCheckMessages_ArchivedUnavailableKeepsMain(t *testing.T) {
	page := loggedInWhatsApp().Set(waRows, waRow("Alice", "hello"))
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.CheckMessages(context.Background(), types.CheckOptions{IncludeArchived: true})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if len(res.Messages) != 1 || res.Messages[0].Title != "Alice" {
		t.Errorf("expected main rows only, got %+v", res.Messages)
	}
}

func TestCheckMessages_SkipsBrokenRowsAndReadsUnread(t *testing.T) {
	broken := browsertest.NewElement("no title here")
	withBadge := waRow("Dana", "see attached").
		WithChild(`[aria-label*="unread message"]`, browsertest.NewElement("3"))
	page := loggedInWhatsApp().Set(waRows, broken, withBadge)
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.CheckMessages(context.Background(), types.CheckOptions{})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected broken row to be skipped, got %+v", res.Messages)
	}
	if res.Messages[0].UnreadCount != 3 {
		t.Errorf("expected 3 unread, got %d", res.Messages[0].UnreadCount)
	}
}

func TestCheckMessages_Limit(t *testing.T) {
	page := loggedInWhatsApp().Set(waRows, waRow("A", "1"), waRow("B", "2"), waRow("C", "3"))
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.CheckMessages(context.Background(), types.CheckOptions{Limit: 2})
	if len(res.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(res.Messages))
	}
}

func TestCheckMessages_LoginTimeout(t *testing.T) {
	page := browsertest.NewPage()
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.CheckMessages(context.Background(), types.CheckOptions{})
	if res.Success {
		t.Fatal("expected failure without a logged-in page")
	}
	if !strings.Contains(res.Error, "login not detected") {
		t.Errorf("unexpected error %q", res.Error)
	}
	if !page.Closed() {
		t.Error("browser must be closed after login failure")
	}
}

func TestCheckMessages_LaunchFailure(t *testing.T) {
	d, l := newTestDriver(t, WhatsApp(), nil)
	l.Err = errors.New("chromium not found")

	res := d.CheckMessages(context.Background(), types.CheckOptions{})
	if res.Success || !strings.Contains(res.Error, "chromium not found") {
		t.Errorf("expected launch error, got %+v", res)
	}
}

func TestCheckMessages_NavigationFailure(t *testing.T) {
	page := loggedInWhatsApp()
	page.FailNavigation(errors.New("net::ERR_INTERNET_DISCONNECTED"))
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.CheckMessages(context.Background(), types.CheckOptions{})
	if res.Success || !strings.Contains(res.Error, "ERR_INTERNET_DISCONNECTED") {
		t.Errorf("expected navigation error, got %+v", res)
	}
	if !page.Closed() {
		t.Error("browser must be closed after navigation failure")
	}
}

func TestSendMessage_InvalidNumber(t *testing.T) {
	page := loggedInWhatsApp()
	page.OnNavigate(func(url string) {
		if strings.HasPrefix(url, "https://web.whatsapp.com/send") {
			page.Set(waPopup, browsertest.NewElement("OK"))
		}
	})
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "+10000000000", "hi")
	if res.Success {
		t.Fatal("expected failure for invalid number")
	}
	if res.Error != "Invalid WhatsApp number." {
		t.Errorf("unexpected error %q", res.Error)
	}
	if !page.Closed() {
		t.Error("browser must be closed after send")
	}
	navs := page.Navigations()
	if len(navs) != 2 || navs[1] != "https://web.whatsapp.com/send?phone=10000000000&text=hi" {
		t.Errorf("unexpected navigations %v", navs)
	}
}

func TestSendMessage_InvalidTargetWinsTie(t *testing.T) {
	page := loggedInWhatsApp()
	input := browsertest.NewElement("")
	page.OnNavigate(func(url string) {
		if strings.Contains(url, "/send") {
			page.Set(waInput, input)
			page.Set(waPopup, browsertest.NewElement("OK"))
		}
	})
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "+1 (555) 000-1111", "hello there")
	if res.Success || res.Error != "Invalid WhatsApp number." {
		t.Fatalf("expected invalid-target failure, got %+v", res)
	}
	if page.Enters() != 0 {
		t.Error("enter must not be pressed for an invalid target")
	}
	if input.Clicks() != 0 {
		t.Error("input must not be touched for an invalid target")
	}
}

func TestSendMessage_InvalidAppearsLater(t *testing.T) {
	page := loggedInWhatsApp()
	sent := false
	page.OnNavigate(func(url string) { sent = strings.Contains(url, "/send") })
	page.OnQuery(func(n int) {
		if sent && n > 40 {
			page.Set(waPopup, browsertest.NewElement("OK"))
		}
	})
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "+10000000000", "hi")
	if res.Success || res.Error != "Invalid WhatsApp number." {
		t.Fatalf("expected invalid-target failure, got %+v", res)
	}
}

func TestSendMessage_PhoneSuccess(t *testing.T) {
	page := loggedInWhatsApp()
	input := browsertest.NewElement("")
	page.OnNavigate(func(url string) {
		if strings.Contains(url, "/send") {
			page.Set(waInput, input)
		}
	})
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "+15550001111", "see you at 5")
	if !res.Success || res.Status != "sent" {
		t.Fatalf("expected sent, got %+v", res)
	}
	if page.Enters() != 1 {
		t.Errorf("expected enter pressed once, got %d", page.Enters())
	}
	if len(input.Inputs()) != 0 {
		t.Errorf("deep link prefills the text, got typed %v", input.Inputs())
	}
	if !strings.Contains(page.Navigations()[1], "text=see+you+at+5") {
		t.Errorf("expected url-encoded text, got %s", page.Navigations()[1])
	}
}

func TestSendMessage_ByNameSkipsExcluded(t *testing.T) {
	page := loggedInWhatsApp()
	input := browsertest.NewElement("")
	metaAI := browsertest.NewElement("Meta AI · Ask me anything")
	alice := browsertest.NewElement("Alice Smith").OnClick(func() {
		page.Set(waInput, input)
	})
	search := browsertest.NewElement("").OnClick(func() {
		page.Set(waResults, metaAI, alice)
	})
	page.Set(waSearch, search)
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "Alice", "hello")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if metaAI.Clicks() != 0 {
		t.Error("excluded result must never be selected")
	}
	if alice.Clicks() != 1 {
		t.Errorf("expected Alice to be opened, got %d clicks", alice.Clicks())
	}
	if got := search.Inputs(); len(got) != 1 || got[0] != "Alice" {
		t.Errorf("unexpected search input %v", got)
	}
	if got := input.Inputs(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("unexpected message input %v", got)
	}
}

func TestSendMessage_ByNameOnlyExcluded(t *testing.T) {
	page := loggedInWhatsApp().
		Set(waSearch, browsertest.NewElement("")).
		Set(waResults, browsertest.NewElement("Ask Meta AI"))
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "Zed", "hello")
	if res.Success || !strings.Contains(res.Error, `no contact matching "Zed"`) {
		t.Errorf("expected no-contact error, got %+v", res)
	}
}

func TestSendMessage_PanicIsContained(t *testing.T) {
	page := loggedInWhatsApp().
		Set(waSearch, browsertest.NewElement("")).
		Set(waResults, browsertest.NewElement("Alice").OnClick(func() { panic("boom") }))
	d, _ := newTestDriver(t, WhatsApp(), page)

	res := d.SendMessage(context.Background(), "Alice", "hello")
	if res.Success || !strings.Contains(res.Error, "boom") {
		t.Errorf("expected panic to surface as error, got %+v", res)
	}
	if !page.Closed() {
		t.Error("browser must be closed after a panic")
	}
}

func TestSendMessage_EmptyTarget(t *testing.T) {
	d, l := newTestDriver(t, WhatsApp(), loggedInWhatsApp())
	res := d.SendMessage(context.Background(), "  ", "hi")
	if res.Success || res.Error != "empty target" {
		t.Errorf("unexpected result %+v", res)
	}
	if l.Launches() != 0 {
		t.Error("no browser should be launched for an empty target")
	}
}

func TestLinkedIn_PhoneTargetUnsupported(t *testing.T) {
	d, l := newTestDriver(t, LinkedIn(), browsertest.NewPage())
	res := d.SendMessage(context.Background(), "+15550001111", "hi")
	if res.Success || !strings.Contains(res.Error, "does not support phone") {
		t.Errorf("unexpected result %+v", res)
	}
	if l.Launches() != 0 {
		t.Error("no browser should be launched")
	}
}

func TestLinkedIn_CredentialLogin(t *testing.T) {
	page := browsertest.NewPage()
	username := browsertest.NewElement("")
	password := browsertest.NewElement("")
	submit := browsertest.NewElement("Sign in").OnClick(func() {
		page.Remove(`#username`)
		page.Set(`#global-nav`, browsertest.NewElement(""))
	})
	page.Set(`#username`, username).Set(`#password`, password).Set(`button[type="submit"]`, submit)

	d, _ := newTestDriver(t, LinkedIn(), page)
	d.opts.Credentials = &Credentials{Username: "me@example.com", Password: "secret"}

	res := d.CheckMessages(context.Background(), types.CheckOptions{})
	if !res.Success {
		t.Fatalf("expected success after credential login, got %q", res.Error)
	}
	if got := username.Inputs(); len(got) != 1 || got[0] != "me@example.com" {
		t.Errorf("unexpected username input %v", got)
	}
	if got := password.Inputs(); len(got) != 1 || got[0] != "secret" {
		t.Errorf("unexpected password input %v", got)
	}
	if submit.Clicks() != 1 {
		t.Errorf("expected one submit, got %d", submit.Clicks())
	}
}

func TestLogin(t *testing.T) {
	d, l := newTestDriver(t, WhatsApp(), loggedInWhatsApp())
	if !d.Login(context.Background()) {
		t.Fatal("expected login to succeed")
	}
	if l.LastOptions().Headless {
		t.Error("interactive login must launch a visible browser")
	}

	d2, _ := newTestDriver(t, WhatsApp(), browsertest.NewPage())
	if d2.Login(context.Background()) {
		t.Error("expected login to report false on timeout")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"+10000000000", "+10000000000", true},
		{"+1 (555) 000-1111", "+15550001111", true},
		{"0300.1234567", "03001234567", true},
		{"Alice", "", false},
		{"Team 2024", "", false},
		{"12345", "", false},
		{"1+2345678", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFilterKeywords(t *testing.T) {
	msgs := []types.ChannelMessage{
		{Title: "Alice", Preview: "URGENT invoice"},
		{Title: "Help desk", Preview: "ticket closed"},
		{Title: "Bob", Preview: "lunch?"},
	}
	got := FilterKeywords(msgs, []string{"urgent", "invoice", "help"})
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %+v", got)
	}
	if len(got[0].MatchedKeywords) != 2 {
		t.Errorf("expected both keywords recorded, got %v", got[0].MatchedKeywords)
	}
	if got[1].Title != "Help desk" {
		t.Errorf("expected title match, got %+v", got[1])
	}
	if all := FilterKeywords(msgs, nil); len(all) != 3 {
		t.Errorf("no keywords must keep everything, got %d", len(all))
	}
}

func TestStateString(t *testing.T) {
	if StateSending.String() != "sending" || StateLoginFailed.String() != "login_failed" {
		t.Error("unexpected state names")
	}
}
