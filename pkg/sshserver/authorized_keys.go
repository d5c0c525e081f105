package sshserver

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is a set of public keys allowed to connect, keyed by wire format.
type AuthorizedKeys map[string]struct{}

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file.
func LoadAuthorizedKeys(path string) (AuthorizedKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sshserver: read authorized keys %q: %w", path, err)
	}
	return ParseAuthorizedKeys(data)
}

func ParseAuthorizedKeys(data []byte) (AuthorizedKeys, error) {
	keys := make(AuthorizedKeys)
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		pub, _, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			return nil, fmt.Errorf("sshserver: parse authorized key on line %d: %w", i+1, err)
		}
		keys[string(pub.Marshal())] = struct{}{}
	}
	return keys, nil
}

func (k AuthorizedKeys) Contains(pub ssh.PublicKey) bool {
	_, ok := k[string(pub.Marshal())]
	return ok
}
