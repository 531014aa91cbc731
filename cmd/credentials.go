package cmd

import (
	"os"
	"strings"
	"unicode"

	"github.com/zalando/go-keyring"

	"helpt/internal/models"
)

// secretEnvVar returns the variable holding a data source secret, e.g.
// HELPT_MY_ORG_TOKEN for data source "my-org"
func secretEnvVar(dataSourceName, kind string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, dataSourceName)
	return "HELPT_" + name + "_" + kind
}

// lookupSecret checks the environment first, then the system keyring
func lookupSecret(envVar, account string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if v, err := keyring.Get(models.KeyringServiceName, account); err == nil {
		return v
	}
	return ""
}

// resolveCredentials returns a copy of ds carrying the effective key and
// token. Values stored in the database are the last fallback.
func resolveCredentials(ds *models.DataSource) models.DataSource {
	resolved := *ds
	if token := lookupSecret(secretEnvVar(ds.Name, "TOKEN"), models.KeyringTokenKey(ds.Name)); token != "" {
		resolved.Token = token
	}
	if key := lookupSecret(secretEnvVar(ds.Name, "KEY"), models.KeyringKeyKey(ds.Name)); key != "" {
		resolved.Key = key
	}
	return resolved
}

// storeSecret saves a secret in the keyring. It reports false when no
// keyring is available so the caller can fall back to the database.
func storeSecret(account, value string) bool {
	if value == "" {
		return true
	}
	return keyring.Set(models.KeyringServiceName, account, value) == nil
}
