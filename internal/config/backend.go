package config

// ConfigBackend abstracts where settings live per platform: UserDefaults
// (via the `defaults` CLI) on macOS, a JSON file under XDG config paths
// elsewhere.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
