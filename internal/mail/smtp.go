package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// OAuthPlaygroundRedirect is the redirect URI the refresh token was minted for.
const OAuthPlaygroundRedirect = "https://developers.google.com/oauthplayground"

// SMTPConfig describes the mail relay and its OAuth2 client.
type SMTPConfig struct {
	Host         string
	Port         int
	From         string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// SMTPSender delivers messages over SMTP authenticated with XOAUTH2.
// It is built once and shared; the token source refreshes the access token when it expires.
type SMTPSender struct {
	addr   string
	from   string
	auth   smtp.Auth
	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds a sender whose OAuth2 access token is derived from the refresh token.
func NewSMTPSender(ctx context.Context, cfg SMTPConfig) *SMTPSender {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoints.Google,
		RedirectURL:  OAuthPlaygroundRedirect,
	}
	source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewSMTPSenderWithTokenSource(cfg, source)
}

// NewSMTPSenderWithTokenSource builds a sender using an existing token source.
func NewSMTPSenderWithTokenSource(cfg SMTPConfig, source oauth2.TokenSource) *SMTPSender {
	return &SMTPSender{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:   cfg.From,
		auth:   &xoauth2Auth{username: cfg.From, source: oauth2.ReuseTokenSource(nil, source)},
		sendFn: smtp.SendMail,
	}
}

// Send delivers msg. The SMTP exchange itself is not cancellable; ctx is checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.sendFn(s.addr, s.auth, s.from, []string{msg.To}, s.compose(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", msg.CreatedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", msg.ID, domainOf(s.from))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

// xoauth2Auth implements the XOAUTH2 SASL mechanism for net/smtp.
type xoauth2Auth struct {
	username string
	source   oauth2.TokenSource
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("xoauth2 requires an encrypted connection")
	}
	token, err := a.source.Token()
	if err != nil {
		return "", nil, fmt.Errorf("fetch oauth2 access token: %w", err)
	}
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, token.AccessToken)
	return "XOAUTH2", []byte(resp), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// the server sent a JSON error challenge; an empty reply ends the exchange
		return nil, fmt.Errorf("xoauth2 rejected: %s", fromServer)
	}
	return nil, nil
}
