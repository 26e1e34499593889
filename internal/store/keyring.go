package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	zkeyring "github.com/zalando/go-keyring"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// DefaultKeyringService is the keyring service name used when none is configured.
const DefaultKeyringService = "n-vpn-traffic"

// keyringUser is the single entry holding the whole record, so that one Set
// replaces all fields together.
const keyringUser = Namespace

// Keyring stores the counters in the system keyring (Secret Service, Keychain
// or Credential Manager) as a single JSON entry.
type Keyring struct {
	service string
}

// Compile-time check that Keyring implements Store.
var _ Store = (*Keyring)(nil)

// NewKeyring creates a keyring-backed store under the given service name.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultKeyringService
	}
	return &Keyring{service: service}
}

// Load reads the counters from the keyring.
func (k *Keyring) Load() (traffic.Counters, error) {
	raw, err := zkeyring.Get(k.service, keyringUser)
	if err != nil {
		if errors.Is(err, zkeyring.ErrNotFound) {
			return traffic.Counters{}, nil
		}
		return traffic.Counters{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return traffic.Counters{}, fmt.Errorf("failed to decode keyring entry: %w", err)
	}
	return r.counters(), nil
}

// Save writes all counters to the keyring.
func (k *Keyring) Save(c traffic.Counters) error {
	data, err := json.Marshal(toRecord(c))
	if err != nil {
		return fmt.Errorf("failed to encode counters: %w", err)
	}
	if err := zkeyring.Set(k.service, keyringUser, string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear resets the stored counters.
func (k *Keyring) Clear(now time.Time) (traffic.Counters, error) {
	return clearWith(k, now)
}
