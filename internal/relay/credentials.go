package relay

import "os"

// CredentialSource resolves the upstream API key at relay time.
type CredentialSource interface {
	Credential() (string, bool)
}

// EnvCredentials reads the key from the named environment variable on every
// call, so a rotated key is picked up without a restart.
type EnvCredentials struct {
	Var string
}

func (e EnvCredentials) Credential() (string, bool) {
	key, ok := os.LookupEnv(e.Var)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// StaticCredentials always returns the same key. An empty key counts as missing.
type StaticCredentials string

func (s StaticCredentials) Credential() (string, bool) {
	return string(s), s != ""
}
