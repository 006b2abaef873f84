package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenFile holds a saved credential for one remote store.
type TokenFile struct {
	Token   string    `json:"token"`
	Server  string    `json:"server"`
	SavedAt time.Time `json:"saved_at"`
}

// TokenExpiry returns the expiry of token when it is a JWT carrying an exp
// claim. Opaque tokens report ok=false. The signature is not verified; the
// result is only used to warn before the store rejects the token.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

// IsExpired returns true if the token is a JWT that expires within margin.
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	exp, ok := TokenExpiry(t.Token)
	if !ok {
		return false
	}
	return time.Now().Add(margin).After(exp)
}

// TokenFilePath returns the path of the token file. ORIGINFS_TOKEN_FILE
// overrides the per-user default.
func TokenFilePath() string {
	if p := os.Getenv("ORIGINFS_TOKEN_FILE"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "originfs", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "originfs", "token.json")
}

// SaveToken writes the token file with owner-only permissions.
func SaveToken(tf *TokenFile) error {
	path := TokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken loads the token file.
func LoadToken() (*TokenFile, error) {
	data, err := os.ReadFile(TokenFilePath())
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	return &tf, nil
}

// DeleteToken removes the saved token file.
func DeleteToken() error {
	return os.Remove(TokenFilePath())
}
