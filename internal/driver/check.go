package driver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/user/deskhand/internal/browser"
	"github.com/user/deskhand/internal/types"
)

const defaultLimit = 20

// CheckMessages lists visible conversations, optionally including the
// archived view, and keeps those matching any keyword. Empty keywords keep
// everything.
func (d *Driver) CheckMessages(ctx context.Context, opts types.CheckOptions) types.CheckResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var msgs []types.ChannelMessage
	err := d.run(ctx, "check", d.opts.Headless, d.opts.LoginTimeout, func(ctx context.Context, s *session) error {
		main, err := d.readConversations(ctx, s, types.SourceMain, limit)
		if err != nil {
			return err
		}
		msgs = append(msgs, main...)

		if opts.IncludeArchived {
			archived, err := d.readArchived(ctx, s, limit)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("archived view unavailable", "error", err)
			}
			msgs = append(msgs, archived...)
		}
		return nil
	})
	if err != nil {
		return types.CheckResult{Success: false, Error: err.Error()}
	}

	msgs = FilterKeywords(msgs, opts.Keywords)
	d.logger.Info("checked messages", "matched", len(msgs), "archived", opts.IncludeArchived)
	return types.CheckResult{Success: true, Messages: msgs}
}

// readConversations parses up to limit rows of the current view. Rows
// without a title are skipped.
func (d *Driver) readConversations(ctx context.Context, s *session, source types.MessageSource, limit int) ([]types.ChannelMessage, error) {
	st := d.strategy
	if _, _, err := browser.WaitFirst(ctx, s.page, d.opts.RowsTimeout, d.opts.PollInterval, st.ConversationRows); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			s.logger.Warn("no conversation rows visible", "source", source)
			return nil, nil
		}
		return nil, err
	}
	rows, err := st.ConversationRows.All(ctx, s.page)
	if err != nil {
		return nil, err
	}

	var out []types.ChannelMessage
	skipped := 0
	for i, row := range rows {
		if i >= limit {
			break
		}
		msg, ok := d.parseRow(ctx, row)
		if !ok {
			skipped++
			continue
		}
		msg.Source = source
		out = append(out, msg)
	}
	if skipped > 0 {
		s.logger.Debug("skipped unparseable rows", "source", source, "count", skipped)
	}
	return out, nil
}

func (d *Driver) parseRow(ctx context.Context, row browser.Element) (types.ChannelMessage, bool) {
	st := d.strategy
	titleEl, err := st.RowTitle.First(ctx, row)
	if err != nil {
		return types.ChannelMessage{}, false
	}
	title, ok, _ := titleEl.Attribute(ctx, "title")
	if !ok || strings.TrimSpace(title) == "" {
		title, _ = titleEl.Text(ctx)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return types.ChannelMessage{}, false
	}

	msg := types.ChannelMessage{Title: title}
	if el, err := st.RowPreview.Last(ctx, row); err == nil {
		text, _ := el.Text(ctx)
		msg.Preview = strings.TrimSpace(text)
	}
	if el, err := st.RowUnread.First(ctx, row); err == nil {
		msg.UnreadCount = unreadCount(ctx, el)
	}
	return msg, true
}

// unreadCount reads a badge count from the element text or its aria-label.
// A badge without a number counts as one.
func unreadCount(ctx context.Context, el browser.Element) int {
	text, _ := el.Text(ctx)
	if n, ok := leadingInt(text); ok {
		return n
	}
	if label, ok, _ := el.Attribute(ctx, "aria-label"); ok {
		if n, ok := leadingInt(label); ok {
			return n
		}
	}
	return 1
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

// readArchived switches to the archived view, parses it and switches back.
// Rows read before a failed switch back are still returned.
func (d *Driver) readArchived(ctx context.Context, s *session, limit int) ([]types.ChannelMessage, error) {
	st := d.strategy
	if st.ArchivedURL != "" {
		if err := d.navigate(ctx, s, st.ArchivedURL); err != nil {
			return nil, err
		}
	} else {
		btn, err := st.ArchivedButton.First(ctx, s.page)
		if err != nil {
			return nil, err
		}
		if err := btn.Click(ctx); err != nil {
			return nil, err
		}
	}
	if err := sleep(ctx, d.opts.ViewDelay); err != nil {
		return nil, err
	}

	msgs, err := d.readConversations(ctx, s, types.SourceArchived, limit)

	if st.ArchivedURL != "" {
		if nerr := d.navigate(ctx, s, st.HomeURL); nerr != nil {
			s.logger.Debug("return from archived view", "error", nerr)
		}
	} else if back, berr := st.BackButton.First(ctx, s.page); berr == nil {
		if cerr := back.Click(ctx); cerr != nil {
			s.logger.Debug("return from archived view", "error", cerr)
		}
	}
	return msgs, err
}

// FilterKeywords keeps messages whose title or preview contains a keyword,
// case-insensitively, recording every keyword that matched. No keywords
// keeps all messages.
func FilterKeywords(msgs []types.ChannelMessage, keywords []string) []types.ChannelMessage {
	if len(keywords) == 0 {
		return msgs
	}
	var out []types.ChannelMessage
	for _, m := range msgs {
		hay := strings.ToLower(m.Title + "\n" + m.Preview)
		var matched []string
		for _, kw := range keywords {
			if kw != "" && strings.Contains(hay, strings.ToLower(kw)) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			m.MatchedKeywords = matched
			out = append(out, m)
		}
	}
	return out
}
