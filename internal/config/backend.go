package config

// ConfigBackend is the platform store for non-secret settings. Getters
// report ok=false for keys that were never set, so defaults apply.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetBool(key string, val bool) error
	// Delete removes key; deleting an unset key is not an error.
	Delete(key string) error
}
