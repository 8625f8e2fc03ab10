package whatsapp

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateDeviceID accepts identifiers that are safe as a single path
// component.
func ValidateDeviceID(deviceID string) error {
	if !deviceIDPattern.MatchString(deviceID) {
		return ErrInvalidDeviceID
	}
	return nil
}

// CredentialStore owns the on-disk layout <root>/<deviceID>/ holding each
// device's session database.
type CredentialStore struct {
	root string
}

func NewCredentialStore(root string) (*CredentialStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve credential root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create credential root: %w", err)
	}
	return &CredentialStore{root: abs}, nil
}

func (s *CredentialStore) Root() string {
	return s.root
}

func (s *CredentialStore) Dir(deviceID string) string {
	return filepath.Join(s.root, deviceID)
}

func (s *CredentialStore) Ensure(deviceID string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	dir := s.Dir(deviceID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create credential dir: %w", err)
	}
	return dir, nil
}

func (s *CredentialStore) Exists(deviceID string) bool {
	if ValidateDeviceID(deviceID) != nil {
		return false
	}
	info, err := os.Stat(s.Dir(deviceID))
	return err == nil && info.IsDir()
}

// Remove deletes the device's credential directory. Missing directories are
// not an error.
func (s *CredentialStore) Remove(deviceID string) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(deviceID)); err != nil {
		return fmt.Errorf("remove credential dir: %w", err)
	}
	return nil
}

// List returns the sorted device identifiers that have a credential
// directory. Entries that are not valid identifiers are skipped.
func (s *CredentialStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential root: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || ValidateDeviceID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
