package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/config"
)

// Load combines the accounts file and the TWITTER_ACCOUNTS list. When the
// same username appears twice the first occurrence wins.
func Load(cfg config.AccountsConfig) ([]types.Account, error) {
	var all []types.Account
	if cfg.File != "" {
		fromFile, err := LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}
	all = append(all, ParseAccounts(cfg.Pairs)...)

	seen := make(map[string]struct{}, len(all))
	return filterMap(all, func(a types.Account) (types.Account, bool) {
		if _, dup := seen[a.Username]; dup {
			logrus.Warnf("duplicate account %s ignored", a.Username)
			return a, false
		}
		seen[a.Username] = struct{}{}
		return a, true
	}), nil
}

// LoadFile reads a JSON array or a YAML list of accounts, picked by extension.
// Entries without a status are considered active.
func LoadFile(path string) ([]types.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading accounts file: %w", err)
	}

	var list []types.Account
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &list)
	default:
		err = json.Unmarshal(data, &list)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing accounts file %s: %w", path, err)
	}

	return filterMap(list, func(a types.Account) (types.Account, bool) {
		a.Username = strings.TrimSpace(a.Username)
		if a.Username == "" || a.Password == "" {
			logrus.Warn("account entry without username or password skipped")
			return a, false
		}
		if a.Status == "" {
			a.Status = types.AccountActive
		}
		return a, true
	}), nil
}

// ParseAccounts parses "username:password[:email]" pairs. All parsed
// accounts are active.
func ParseAccounts(accountPairs []string) []types.Account {
	return filterMap(accountPairs, func(pair string) (types.Account, bool) {
		credentials := strings.Split(pair, ":")
		if len(credentials) < 2 || len(credentials) > 3 {
			logrus.Warnf("invalid account credentials: %s", redact(pair))
			return types.Account{}, false
		}
		a := types.Account{
			Username: strings.TrimSpace(credentials[0]),
			Password: strings.TrimSpace(credentials[1]),
			Status:   types.AccountActive,
		}
		if len(credentials) == 3 {
			a.Email = strings.TrimSpace(credentials[2])
		}
		if a.Username == "" || a.Password == "" {
			logrus.Warnf("invalid account credentials: %s", redact(pair))
			return types.Account{}, false
		}
		return a, true
	})
}

func redact(pair string) string {
	user, _, _ := strings.Cut(pair, ":")
	return user + ":***"
}
