package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vecna-vault/vecna/pkg/audit"
	"github.com/vecna-vault/vecna/pkg/vault"
)

// errDenied lands in the audit trail when the policy blocks a lookup. The
// caller only ever sees a not-found answer.
var errDenied = errors.New("denied by policy")

// CredentialListInput is the input for the credential_list tool.
type CredentialListInput struct {
	Tag string `json:"tag,omitempty"`
}

// CredentialInfo is credential metadata without the password.
type CredentialInfo struct {
	Name      string   `json:"name"`
	Username  string   `json:"username,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	HasNotes  bool     `json:"has_notes"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// CredentialListOutput is the output for the credential_list tool.
type CredentialListOutput struct {
	Credentials []CredentialInfo `json:"credentials"`
}

// CredentialExistsInput is the input for the credential_exists tool.
type CredentialExistsInput struct {
	Name string `json:"name"`
}

// CredentialExistsOutput is the output for the credential_exists tool.
type CredentialExistsOutput struct {
	Exists    bool     `json:"exists"`
	Name      string   `json:"name"`
	Username  string   `json:"username,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	HasNotes  bool     `json:"has_notes"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// CredentialGetMaskedInput is the input for the credential_get_masked tool.
type CredentialGetMaskedInput struct {
	Name string `json:"name"`
}

// CredentialGetMaskedOutput is the output for the credential_get_masked tool.
type CredentialGetMaskedOutput struct {
	Name           string `json:"name"`
	MaskedPassword string `json:"masked_password"`
	PasswordLength int    `json:"password_length"`
}

// AliasListInput is the input for the alias_list tool.
type AliasListInput struct {
	Tag string `json:"tag,omitempty"`
}

// AliasInfo is alias metadata without the command string.
type AliasInfo struct {
	Name      string   `json:"name"`
	Tags      []string `json:"tags,omitempty"`
	HasNotes  bool     `json:"has_notes"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// AliasListOutput is the output for the alias_list tool.
type AliasListOutput struct {
	Aliases []AliasInfo `json:"aliases"`
}

func (s *Server) handleCredentialList(_ context.Context, _ *mcp.CallToolRequest, input CredentialListInput) (*mcp.CallToolResult, CredentialListOutput, error) {
	var filter []string
	if input.Tag != "" {
		filter = []string{input.Tag}
	}

	records, err := s.vault.ListCredentials(filter)
	if err != nil {
		return nil, CredentialListOutput{}, fmt.Errorf("failed to list credentials: %w", err)
	}

	output := CredentialListOutput{Credentials: make([]CredentialInfo, 0, len(records))}
	for _, rec := range records {
		if !s.policy.IsNameAllowed(rec.Name) {
			continue
		}
		output.Credentials = append(output.Credentials, CredentialInfo{
			Name:      rec.Name,
			Username:  rec.Username,
			Tags:      rec.Tags,
			HasNotes:  rec.Notes != "",
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, output, nil
}

func (s *Server) handleCredentialExists(_ context.Context, _ *mcp.CallToolRequest, input CredentialExistsInput) (*mcp.CallToolResult, CredentialExistsOutput, error) {
	if input.Name == "" {
		return nil, CredentialExistsOutput{}, errors.New("name is required")
	}
	if !s.policy.IsNameAllowed(input.Name) {
		// Denied names look absent so the policy does not leak them.
		s.logTool(audit.OpCredentialExists, input.Name, nil)
		return nil, CredentialExistsOutput{Exists: false, Name: input.Name}, nil
	}

	rec, err := s.vault.GetCredential(input.Name)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			s.logTool(audit.OpCredentialExists, input.Name, nil)
			return nil, CredentialExistsOutput{Exists: false, Name: input.Name}, nil
		}
		s.logTool(audit.OpCredentialExists, input.Name, err)
		return nil, CredentialExistsOutput{}, fmt.Errorf("failed to get credential: %w", err)
	}
	s.logTool(audit.OpCredentialExists, input.Name, nil)

	return nil, CredentialExistsOutput{
		Exists:    true,
		Name:      rec.Name,
		Username:  rec.Username,
		Tags:      rec.Tags,
		HasNotes:  rec.Notes != "",
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleCredentialGetMasked(_ context.Context, _ *mcp.CallToolRequest, input CredentialGetMaskedInput) (*mcp.CallToolResult, CredentialGetMaskedOutput, error) {
	if input.Name == "" {
		return nil, CredentialGetMaskedOutput{}, errors.New("name is required")
	}
	if !s.policy.IsNameAllowed(input.Name) {
		s.logTool(audit.OpCredentialGetMasked, input.Name, errDenied)
		return nil, CredentialGetMaskedOutput{}, fmt.Errorf("credential %q not found", input.Name)
	}

	rec, err := s.vault.GetCredential(input.Name)
	if err != nil {
		s.logTool(audit.OpCredentialGetMasked, input.Name, err)
		return nil, CredentialGetMaskedOutput{}, fmt.Errorf("failed to get credential: %w", err)
	}
	s.logTool(audit.OpCredentialGetMasked, input.Name, nil)

	return nil, CredentialGetMaskedOutput{
		Name:           rec.Name,
		MaskedPassword: maskValue(rec.Password),
		PasswordLength: len(rec.Password),
	}, nil
}

func (s *Server) handleAliasList(_ context.Context, _ *mcp.CallToolRequest, input AliasListInput) (*mcp.CallToolResult, AliasListOutput, error) {
	output := AliasListOutput{Aliases: []AliasInfo{}}
	if s.policy == nil || !s.policy.ExposeAliases {
		return nil, output, nil
	}

	var filter []string
	if input.Tag != "" {
		filter = []string{input.Tag}
	}
	records, err := s.vault.ListAliases(filter)
	if err != nil {
		return nil, AliasListOutput{}, fmt.Errorf("failed to list aliases: %w", err)
	}

	for _, rec := range records {
		if !s.policy.IsNameAllowed(rec.Name) {
			continue
		}
		output.Aliases = append(output.Aliases, AliasInfo{
			Name:      rec.Name,
			Tags:      rec.Tags,
			HasNotes:  rec.Notes != "",
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, output, nil
}

// maskValue exposes at most the last four characters of a secret.
func maskValue(value string) string {
	length := len(value)
	if length == 0 {
		return ""
	}
	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + value[length-2:]
	default:
		return strings.Repeat("*", length-4) + value[length-4:]
	}
}
