package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"

	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/resilience"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const defaultIMAPTimeout = 30 * time.Second

// IMAPConfig holds IMAP/SMTP mailbox settings. Gmail with an app password
// works with the defaults from config.
type IMAPConfig struct {
	IMAPAddr    string // host:port, implicit TLS
	SMTPAddr    string // host:port, implicit TLS
	Username    string
	Password    string
	From        string
	Mailbox     string
	MaxMessages int
	Timeout     time.Duration
}

// IMAPAdapter implements out.MailboxPort over IMAP (read) and SMTP (send).
// Every operation opens its own session.
type IMAPAdapter struct {
	cfg IMAPConfig
	cb  *resilience.Breaker
}

func NewIMAPAdapter(cfg IMAPConfig) (*IMAPAdapter, error) {
	if cfg.IMAPAddr == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, out.NewProviderError("imap", out.ProviderErrInvalidInput, "imap address and credentials are required", nil, false)
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultIMAPTimeout
	}
	// App passwords are often pasted with the display spaces.
	cfg.Password = strings.ReplaceAll(cfg.Password, " ", "")

	return &IMAPAdapter{
		cfg: cfg,
		cb:  resilience.NewBreaker(resilience.DefaultBreakerConfig("imap")),
	}, nil
}

func (a *IMAPAdapter) GetProviderName() string {
	return "imap"
}

// FetchUnread returns unseen messages, oldest first. Bodies are fetched with
// BODY.PEEK so nothing is flagged as seen until MarkRead.
func (a *IMAPAdapter) FetchUnread(ctx context.Context) ([]*out.MailMessage, error) {
	return resilience.Execute(ctx, a.cb, func(ctx context.Context) ([]*out.MailMessage, error) {
		c, err := a.connectIMAP(ctx)
		if err != nil {
			return nil, err
		}
		defer c.Logout()

		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		uids, err := c.UidSearch(criteria)
		if err != nil {
			return nil, wrapIMAPError(err, "search unseen failed")
		}
		uids = oldestUIDs(uids, a.cfg.MaxMessages)
		if len(uids) == 0 {
			return []*out.MailMessage{}, nil
		}
		return a.fetchByUID(c, uids)
	})
}

func (a *IMAPAdapter) fetchByUID(c *client.Client, uids []uint32) ([]*out.MailMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids)+8)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, ch)
	}()

	byUID := make(map[uint32]*out.MailMessage, len(uids))
	var parseErr error
	for msg := range ch {
		literal := msg.GetBody(section)
		if literal == nil || parseErr != nil {
			continue
		}
		raw, err := io.ReadAll(literal)
		if err != nil {
			parseErr = fmt.Errorf("read body of uid %d: %w", msg.Uid, err)
			continue
		}
		m, err := ParseRawMessage(bytes.NewReader(raw))
		if err != nil {
			logger.WithField("uid", msg.Uid).WithError(err).Warn("[IMAP] skipping unparsable message")
			continue
		}
		m.ID = strconv.FormatUint(uint64(msg.Uid), 10)
		m.ThreadID = m.InternetMessageID
		byUID[msg.Uid] = m
	}
	if err := <-done; err != nil {
		return nil, wrapIMAPError(err, "fetch failed")
	}
	if parseErr != nil {
		return nil, wrapIMAPError(parseErr, "fetch failed")
	}

	messages := make([]*out.MailMessage, 0, len(byUID))
	for _, uid := range uids {
		if m, ok := byUID[uid]; ok {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// MarkRead adds the \Seen flag. messageID is the UID returned by FetchUnread.
func (a *IMAPAdapter) MarkRead(ctx context.Context, messageID string) error {
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return out.NewProviderError("imap", out.ProviderErrInvalidInput, "invalid uid "+messageID, err, false)
	}

	return resilience.Do(ctx, a.cb, func(ctx context.Context) error {
		c, err := a.connectIMAP(ctx)
		if err != nil {
			return err
		}
		defer c.Logout()

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uint32(uid))
		flags := []interface{}{imap.SeenFlag}
		if err := c.UidStore(seqSet, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			return wrapIMAPError(err, "store seen flag failed")
		}
		return nil
	})
}

// SendReply submits the reply over SMTP.
func (a *IMAPAdapter) SendReply(ctx context.Context, reply *out.OutgoingReply) (*out.SendResult, error) {
	raw, err := BuildReply(a.cfg.From, reply)
	if err != nil {
		return nil, out.NewProviderError("smtp", out.ProviderErrInvalidInput, "failed to build reply", err, false)
	}
	rcpt, err := addressOnly(reply.To)
	if err != nil {
		return nil, out.NewProviderError("smtp", out.ProviderErrInvalidInput, "invalid recipient", err, false)
	}
	sender, err := addressOnly(a.cfg.From)
	if err != nil {
		return nil, out.NewProviderError("smtp", out.ProviderErrInvalidInput, "invalid sender", err, false)
	}

	err = resilience.Do(ctx, a.cb, func(ctx context.Context) error {
		c, err := a.connectSMTP(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Mail(sender, nil); err != nil {
			return wrapSMTPError(err, "MAIL FROM failed")
		}
		if err := c.Rcpt(rcpt, nil); err != nil {
			return wrapSMTPError(err, "RCPT TO failed")
		}
		w, err := c.Data()
		if err != nil {
			return wrapSMTPError(err, "DATA failed")
		}
		if _, err := w.Write(raw); err != nil {
			return wrapSMTPError(err, "writing message failed")
		}
		if err := w.Close(); err != nil {
			return wrapSMTPError(err, "finalizing message failed")
		}
		return c.Quit()
	})
	if err != nil {
		return nil, wrapSMTPError(err, "send failed")
	}
	return &out.SendResult{ThreadID: reply.ThreadID}, nil
}

func (a *IMAPAdapter) dialer(ctx context.Context) *net.Dialer {
	d := &net.Dialer{Timeout: a.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}
	return d
}

func (a *IMAPAdapter) connectIMAP(ctx context.Context) (*client.Client, error) {
	host, _, _ := net.SplitHostPort(a.cfg.IMAPAddr)
	c, err := client.DialWithDialerTLS(a.dialer(ctx), a.cfg.IMAPAddr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, wrapIMAPError(err, "dial failed")
	}
	c.Timeout = a.cfg.Timeout

	if err := c.Login(a.cfg.Username, a.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, out.NewProviderError("imap", out.ProviderErrAuth, "login failed", resilience.Permanent(err), false)
	}
	if _, err := c.Select(a.cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, wrapIMAPError(err, "select "+a.cfg.Mailbox+" failed")
	}
	return c, nil
}

func (a *IMAPAdapter) connectSMTP(ctx context.Context) (*smtp.Client, error) {
	host, _, _ := net.SplitHostPort(a.cfg.SMTPAddr)
	conn, err := tls.DialWithDialer(a.dialer(ctx), "tcp", a.cfg.SMTPAddr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, wrapSMTPError(err, "TLS dial failed")
	}

	c := smtp.NewClient(conn)
	if err := c.Auth(sasl.NewPlainClient("", a.cfg.Username, a.cfg.Password)); err != nil {
		_ = c.Close()
		return nil, out.NewProviderError("smtp", out.ProviderErrAuth, "auth failed", resilience.Permanent(err), false)
	}
	return c, nil
}

func addressOnly(s string) (string, error) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}

// oldestUIDs sorts ascending and keeps at most limit UIDs.
func oldestUIDs(uids []uint32, limit int) []uint32 {
	sorted := slices.Clone(uids)
	slices.Sort(sorted)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func wrapIMAPError(err error, msg string) error {
	return wrapMailError("imap", err, msg)
}

func wrapSMTPError(err error, msg string) error {
	return wrapMailError("smtp", err, msg)
}

func wrapMailError(provider string, err error, msg string) error {
	if err == nil {
		return nil
	}
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return out.NewProviderError(provider, out.ProviderErrServer, "Circuit open", err, true)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return out.NewProviderError(provider, out.ProviderErrNetwork, msg, err, true)
	}
	return out.NewProviderError(provider, out.ProviderErrServer, msg, err, true)
}

var _ out.MailboxPort = (*IMAPAdapter)(nil)
