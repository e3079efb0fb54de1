package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the bot's secrets in the OS keychain.
	KeyringService = "jobalert"
	// DefaultAccount is the keyring account used when none is configured.
	DefaultAccount = "bot-token"
	// EnvToken is consulted when the config carries no token.
	EnvToken = "TELEGRAM_BOT_TOKEN"
)

// ErrNoToken means no bot token was configured or stored.
var ErrNoToken = errors.New(`bot token not found (set telegram.token or run "jobalert token set")`)

// BotToken resolves the Bot API token: the configured value, then
// TELEGRAM_BOT_TOKEN, then the OS keychain.
func BotToken(configured, account string) (string, error) {
	if t := strings.TrimSpace(configured); t != "" {
		return t, nil
	}
	if t := strings.TrimSpace(os.Getenv(EnvToken)); t != "" {
		return t, nil
	}

	tok, err := keyring.Get(KeyringService, accountOr(account))
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", ErrNoToken
	case err != nil:
		return "", fmt.Errorf("read keychain: %w", err)
	case strings.TrimSpace(tok) == "":
		return "", ErrNoToken
	}
	return strings.TrimSpace(tok), nil
}

// SetBotToken stores token in the OS keychain.
func SetBotToken(account, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, accountOr(account), strings.TrimSpace(token))
}

// DeleteBotToken removes the stored token. Deleting a missing token is not an error.
func DeleteBotToken(account string) error {
	err := keyring.Delete(KeyringService, accountOr(account))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func accountOr(account string) string {
	if a := strings.TrimSpace(account); a != "" {
		return a
	}
	return DefaultAccount
}
