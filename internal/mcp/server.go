package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vecna-vault/vecna/pkg/audit"
	"github.com/vecna-vault/vecna/pkg/config"
	"github.com/vecna-vault/vecna/pkg/crypto"
	"github.com/vecna-vault/vecna/pkg/session"
	"github.com/vecna-vault/vecna/pkg/vault"
)

// PasswordEnv is the environment variable the server reads the master
// password from. It is cleared immediately after reading.
const PasswordEnv = "VECNA_PASSWORD"

// Server bridges MCP tool calls to a read-only view of the vault.
type Server struct {
	server *mcp.Server
	vault  *vault.Vault
	policy *Policy
	audit  *audit.Logger
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	// VaultDir is the vault directory. Empty means the configured or
	// default location.
	VaultDir string

	// Password is the master password. Empty means read PasswordEnv.
	Password string
}

// NewServer unlocks the vault and prepares the tool registry.
func NewServer(opts *ServerOptions, version string) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}

	vaultDir := opts.VaultDir
	if vaultDir == "" {
		vaultDir = cfg.VaultDir
	}
	if vaultDir == "" {
		vaultDir, err = config.DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	policy, err := LoadPolicy(vaultDir)
	if err != nil {
		// Without a valid policy the server still runs, exposing nothing.
		log.Printf("warning: failed to load MCP policy: %v", err)
		policy = nil
	}

	auditLogger, err := audit.Open(filepath.Join(vaultDir, vault.AuditFileName))
	if err != nil {
		log.Printf("warning: audit logging disabled: %v", err)
		auditLogger = nil
	}

	cache, err := session.New()
	if err != nil {
		return nil, err
	}
	v := vault.New(vaultDir, cache, vault.Options{
		Iterations:     cfg.KDFIterations,
		SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Second,
		Audit:          auditLogger,
	})

	password := []byte(opts.Password)
	if len(password) == 0 {
		password = []byte(os.Getenv(PasswordEnv))
		os.Unsetenv(PasswordEnv)
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("mcp: no password provided: set %s", PasswordEnv)
	}
	defer crypto.SecureWipe(password)

	if err := v.Unlock(password); err != nil {
		if auditLogger != nil {
			auditLogger.Close()
		}
		return nil, fmt.Errorf("mcp: failed to unlock vault: %w", err)
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "vecna",
			Version: version,
		}, nil),
		vault:  v,
		policy: policy,
		audit:  auditLogger,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_list",
		Description: "List credential names with metadata (tags, timestamps, username). Does NOT return passwords.",
	}, s.handleCredentialList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_exists",
		Description: "Check whether a credential exists and return its metadata. Does NOT return the password.",
	}, s.handleCredentialExists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_get_masked",
		Description: "Get a masked version of a credential's password (e.g. '****WXYZ') for format verification without exposure.",
	}, s.handleCredentialGetMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "alias_list",
		Description: "List alias names with metadata. Alias commands may embed secrets and are NOT returned.",
	}, s.handleAliasList)
}

// logTool records a tool invocation against the read-only surface. Audit
// trouble is reported but never fails the tool call.
func (s *Server) logTool(op, name string, cause error) {
	if s.audit == nil {
		return
	}
	var err error
	if cause != nil {
		err = s.audit.LogError(op, name, cause)
	} else {
		err = s.audit.LogSuccess(op, name)
	}
	if err != nil {
		log.Printf("warning: failed to write audit event: %v", err)
	}
}

// Run serves MCP over stdio until the context ends, then locks the vault.
func (s *Server) Run(ctx context.Context) error {
	defer s.vault.Lock()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the vault and releases the audit database.
func (s *Server) Close() error {
	err := s.vault.Lock()
	if s.audit != nil {
		s.audit.Close()
	}
	return err
}
