package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// ErrSignupNotSupported is returned when the account does not exist; this
// tool only logs into existing accounts.
var ErrSignupNotSupported = errors.New("signup not supported")

// Authenticator drives the user login flow. Credentials configured up front
// are used without prompting (the phone number is canonicalized first);
// anything missing is prompted for on the terminal.
type Authenticator struct {
	phone    string
	password string
	input    *bufio.Reader
	output   io.Writer
	logger   *zerolog.Logger
}

// NewAuthenticator creates an authenticator with optional preset
// credentials.
func NewAuthenticator(phone, password string, logger *zerolog.Logger) *Authenticator {
	return &Authenticator{
		phone:    phone,
		password: password,
		input:    bufio.NewReader(os.Stdin),
		output:   os.Stderr,
		logger:   logger,
	}
}

// Flow returns the auth flow for client.Auth().IfNecessary.
func (a *Authenticator) Flow() auth.Flow {
	return auth.NewFlow(a, auth.SendCodeOptions{})
}

func (a *Authenticator) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.prompt("login code")
}

func (a *Authenticator) Phone(_ context.Context) (string, error) {
	raw := a.phone

	if raw == "" {
		var err error

		raw, err = a.prompt("phone number with country code")
		if err != nil {
			return "", err
		}
	}

	phone := canonicalPhone(raw)
	if phone == "" {
		return "", errors.New("phone number contains no digits")
	}

	a.logger.Info().Str("phone", redactPhone(phone)).Msg("logging in")

	return phone, nil
}

func (a *Authenticator) Password(_ context.Context) (string, error) {
	if a.password != "" {
		return a.password, nil
	}

	return a.prompt("2FA password")
}

func (a *Authenticator) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a *Authenticator) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignupNotSupported
}

func (a *Authenticator) prompt(label string) (string, error) {
	fmt.Fprintf(a.output, "%s: ", label)

	line, err := a.input.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", label, err)
	}

	return strings.TrimSpace(line), nil
}

// canonicalPhone strips separators, keeping the digits and a leading plus.
func canonicalPhone(raw string) string {
	raw = strings.TrimSpace(raw)

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}

		return -1
	}, raw)
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(raw, "+") {
		return "+" + digits
	}

	return digits
}

// redactPhone leaves only the last two digits visible in log output.
func redactPhone(phone string) string {
	const visible = 2

	if len(phone) <= visible {
		return strings.Repeat("*", len(phone))
	}

	return strings.Repeat("*", len(phone)-visible) + phone[len(phone)-visible:]
}
