package twitter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// sessionFile is where the cookies of one account are persisted.
func sessionFile(dir, identity string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_twitter_cookies.json", identity))
}

func saveCookies(path string, cookies []*http.Cookie) error {
	logrus.Debugf("Writing %d cookies to file: %s", len(cookies), path)

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("error marshaling cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("error creating sessions directory: %w", err)
	}
	// Written beside the target and renamed into place.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("error saving cookies: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error saving cookies: %w", err)
	}
	return nil
}

func loadCookies(path string) ([]*http.Cookie, error) {
	logrus.Debugf("Loading cookies from file: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading cookies file: %w", err)
	}

	var cookies []*http.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("error unmarshaling cookies: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("cookies file %s is empty", path)
	}
	logrus.Debugf("Loaded %d cookies", len(cookies))
	return cookies, nil
}
