// Package mcp exposes a read-only Model Context Protocol server over the
// vault. Tools return record names, metadata, and masked values; plaintext
// secrets never cross the protocol boundary.
package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PolicyFileName is the policy file inside the vault directory.
const PolicyFileName = "mcp-policy.yaml"

// Policy actions
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Policy load errors
var (
	ErrPolicyNotFound       = errors.New("mcp: policy file not found")
	ErrPolicyInsecure       = errors.New("mcp: policy file has insecure permissions")
	ErrPolicySymlink        = errors.New("mcp: policy file is a symlink")
	ErrPolicyNotOwnedByUser = errors.New("mcp: policy file not owned by current user")
)

// Policy controls which record names the server may report to a client.
// The zero policy denies everything; with no policy file present the
// server runs with DefaultAction deny and exposes nothing.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedNames   []string `yaml:"denied_names"`
	AllowedNames  []string `yaml:"allowed_names"`

	// ExposeAliases additionally gates the alias namespace. Credentials
	// are governed purely by the name rules above.
	ExposeAliases bool `yaml:"expose_aliases"`
}

// LoadPolicy loads the policy from the vault directory. The file is opened
// without following symlinks, then checked for 0600 permissions and
// current-user ownership on the open descriptor before parsing.
func LoadPolicy(vaultDir string) (*Policy, error) {
	path := filepath.Join(vaultDir, PolicyFileName)

	f, err := openPolicyFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to stat policy file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("mcp: failed to parse policy file: %w", err)
	}
	if policy.Version != 1 {
		return nil, fmt.Errorf("mcp: unsupported policy version: %d", policy.Version)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	return &policy, nil
}

// IsNameAllowed reports whether a record name may appear in tool output.
// Denied names win over allowed names, then the default action applies.
func (p *Policy) IsNameAllowed(name string) bool {
	if p == nil {
		return false
	}
	for _, denied := range p.DeniedNames {
		if name == denied {
			return false
		}
	}
	for _, allowed := range p.AllowedNames {
		if name == allowed {
			return true
		}
	}
	return p.DefaultAction == ActionAllow
}
