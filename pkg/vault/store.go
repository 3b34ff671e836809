package vault

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Record names are case-sensitive and Unicode NFC-normalized: the same name
// typed with different codepoint compositions addresses one record. The two
// namespaces (credentials, aliases) are fully independent.

// CredentialRecord is a stored login credential.
type CredentialRecord struct {
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AliasRecord is a stored command alias. The command string may itself
// embed secrets, which is why aliases live inside the encrypted container.
type AliasRecord struct {
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialUpdate is a partial update for a credential. Nil fields are
// left unchanged; typed pointers keep the merge compile-checked instead of
// funneling everything through a string map.
type CredentialUpdate struct {
	NewName  *string
	Username *string
	Password *string
	Notes    *string
	Tags     *[]string
}

// AliasUpdate is a partial update for an alias.
type AliasUpdate struct {
	NewName *string
	Command *string
	Notes   *string
	Tags    *[]string
}

// RecordStore is the decrypted payload of a vault container: two
// name-keyed namespaces. Instances are transient, materialized per
// operation by the engine and discarded afterwards.
type RecordStore struct {
	Credentials map[string]*CredentialRecord `json:"credentials"`
	Aliases     map[string]*AliasRecord      `json:"aliases"`
}

// NewRecordStore returns an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		Credentials: make(map[string]*CredentialRecord),
		Aliases:     make(map[string]*AliasRecord),
	}
}

// normalize repairs nil maps after JSON decoding an older or empty payload.
func (s *RecordStore) normalize() {
	if s.Credentials == nil {
		s.Credentials = make(map[string]*CredentialRecord)
	}
	if s.Aliases == nil {
		s.Aliases = make(map[string]*AliasRecord)
	}
}

// NormalizeName canonicalizes a record name: trims surrounding whitespace
// and applies Unicode NFC so composed and decomposed spellings collide.
// Case is preserved.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func validateName(name string) (string, error) {
	name = NormalizeName(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// tagsIntersect reports whether the record tags share at least one entry
// with the filter. An empty filter matches everything.
func tagsIntersect(tags, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		for _, t := range tags {
			if t == f {
				return true
			}
		}
	}
	return false
}

// AddCredential inserts a credential, setting its timestamps.
func (s *RecordStore) AddCredential(rec CredentialRecord, now time.Time) error {
	name, err := validateName(rec.Name)
	if err != nil {
		return err
	}
	if _, exists := s.Credentials[name]; exists {
		return ErrDuplicateName
	}

	rec.Name = name
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.Credentials[name] = &rec
	return nil
}

// GetCredential returns the credential with the given name.
func (s *RecordStore) GetCredential(name string) (*CredentialRecord, error) {
	rec, ok := s.Credentials[NormalizeName(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// UpdateCredential merges the supplied fields into the named credential and
// refreshes its updated timestamp. Renames are duplicate-checked against
// the namespace.
func (s *RecordStore) UpdateCredential(name string, upd CredentialUpdate, now time.Time) error {
	key := NormalizeName(name)
	rec, ok := s.Credentials[key]
	if !ok {
		return ErrNotFound
	}

	if upd.NewName != nil {
		newKey, err := validateName(*upd.NewName)
		if err != nil {
			return err
		}
		if newKey != key {
			if _, exists := s.Credentials[newKey]; exists {
				return ErrDuplicateName
			}
			delete(s.Credentials, key)
			rec.Name = newKey
			s.Credentials[newKey] = rec
		}
	}
	if upd.Username != nil {
		rec.Username = *upd.Username
	}
	if upd.Password != nil {
		rec.Password = *upd.Password
	}
	if upd.Notes != nil {
		rec.Notes = *upd.Notes
	}
	if upd.Tags != nil {
		rec.Tags = append([]string(nil), (*upd.Tags)...)
	}
	rec.UpdatedAt = now
	return nil
}

// DeleteCredential removes the named credential.
func (s *RecordStore) DeleteCredential(name string) error {
	key := NormalizeName(name)
	if _, ok := s.Credentials[key]; !ok {
		return ErrNotFound
	}
	delete(s.Credentials, key)
	return nil
}

// ListCredentials returns credentials ordered by name. With a tag filter,
// only records whose tag set intersects the filter are returned.
func (s *RecordStore) ListCredentials(tagFilter []string) []*CredentialRecord {
	out := make([]*CredentialRecord, 0, len(s.Credentials))
	for _, rec := range s.Credentials {
		if tagsIntersect(rec.Tags, tagFilter) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddAlias inserts an alias, setting its timestamps.
func (s *RecordStore) AddAlias(rec AliasRecord, now time.Time) error {
	name, err := validateName(rec.Name)
	if err != nil {
		return err
	}
	if _, exists := s.Aliases[name]; exists {
		return ErrDuplicateName
	}

	rec.Name = name
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.Aliases[name] = &rec
	return nil
}

// GetAlias returns the alias with the given name.
func (s *RecordStore) GetAlias(name string) (*AliasRecord, error) {
	rec, ok := s.Aliases[NormalizeName(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// UpdateAlias merges the supplied fields into the named alias and
// refreshes its updated timestamp.
func (s *RecordStore) UpdateAlias(name string, upd AliasUpdate, now time.Time) error {
	key := NormalizeName(name)
	rec, ok := s.Aliases[key]
	if !ok {
		return ErrNotFound
	}

	if upd.NewName != nil {
		newKey, err := validateName(*upd.NewName)
		if err != nil {
			return err
		}
		if newKey != key {
			if _, exists := s.Aliases[newKey]; exists {
				return ErrDuplicateName
			}
			delete(s.Aliases, key)
			rec.Name = newKey
			s.Aliases[newKey] = rec
		}
	}
	if upd.Command != nil {
		rec.Command = *upd.Command
	}
	if upd.Notes != nil {
		rec.Notes = *upd.Notes
	}
	if upd.Tags != nil {
		rec.Tags = append([]string(nil), (*upd.Tags)...)
	}
	rec.UpdatedAt = now
	return nil
}

// DeleteAlias removes the named alias.
func (s *RecordStore) DeleteAlias(name string) error {
	key := NormalizeName(name)
	if _, ok := s.Aliases[key]; !ok {
		return ErrNotFound
	}
	delete(s.Aliases, key)
	return nil
}

// ListAliases returns aliases ordered by name, optionally tag-filtered.
func (s *RecordStore) ListAliases(tagFilter []string) []*AliasRecord {
	out := make([]*AliasRecord, 0, len(s.Aliases))
	for _, rec := range s.Aliases {
		if tagsIntersect(rec.Tags, tagFilter) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
