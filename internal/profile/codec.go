package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FormatVersion is the version written into every profile envelope.
// Version 1 was the unencrypted bare-profile JSON record.
const FormatVersion = 2

var (
	ErrDecode             = errors.New("record cannot be decoded")
	ErrUnsupportedVersion = errors.New("unsupported record format version")
)

// fileExt is the suffix of every persisted profile record.
const fileExt = ".profile"

// legacySuffix is appended to plaintext records once they are migrated.
const legacySuffix = ".migrated"

type envelope struct {
	FormatVersion int      `json:"format_version"`
	Profile       *Profile `json:"profile"`
}

func encodeRecord(key []byte, p *Profile) ([]byte, error) {
	plain, err := json.Marshal(envelope{FormatVersion: FormatVersion, Profile: p})
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}
	return seal(key, plain)
}

// decodeRecord opens a sealed record. When decryption fails it retries the
// bytes as a legacy plaintext record and reports legacy=true on success.
func decodeRecord(key, data []byte) (p *Profile, legacy bool, err error) {
	plain, err := open(key, data)
	if err != nil {
		if lp, lerr := decodeLegacy(data); lerr == nil {
			return lp, true, nil
		}
		return nil, false, err
	}

	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.FormatVersion)
	}
	if env.Profile == nil || env.Profile.Name == "" {
		return nil, false, fmt.Errorf("%w: missing profile", ErrDecode)
	}
	env.Profile.normalize()
	return env.Profile, false, nil
}

// decodeLegacy reads a version 1 record: the profile object as plain JSON.
func decodeLegacy(data []byte) (*Profile, error) {
	var probe struct {
		FormatVersion *int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if probe.FormatVersion != nil {
		return nil, fmt.Errorf("%w: plaintext envelope %d", ErrUnsupportedVersion, *probe.FormatVersion)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrDecode)
	}
	p.normalize()
	return &p, nil
}

// fileName maps a profile name to its record file. Letters, digits, space,
// dot, dash and underscore are kept; every other byte is %XX escaped, so
// distinct names never share a file.
func fileName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == ' ', c == '-', c == '_':
			b.WriteByte(c)
		case c == '.' && i > 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String() + fileExt
}
