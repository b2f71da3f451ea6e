package backends

import (
	"github.com/hashicorp/go-hclog"
)

// Config holds backend configuration from HCL
type Config struct {
	// Audit backend (always enabled if present)
	Audit *AuditConfig `hcl:"audit,block"`

	// Mail backend configuration
	Mail *MailConfig `hcl:"mail,block"`
}

// AuditConfig configures the audit backend
type AuditConfig struct {
	Enabled bool `hcl:"enabled,optional"`
}

// MailConfig configures the mail backend
type MailConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	SMTPHost     string `hcl:"smtp_host,optional"`
	SMTPPort     string `hcl:"smtp_port,optional"`
	SMTPUsername string `hcl:"smtp_username,optional"`
	SMTPPassword string `hcl:"smtp_password,optional"`
	FromAddress  string `hcl:"from_address,optional"`
	FromName     string `hcl:"from_name,optional"`
	UseTLS       bool   `hcl:"use_tls,optional"`
}

// Registry manages available notification backends
type Registry struct {
	backends map[string]Backend
	order    []string
}

// NewRegistry creates a new backend registry from configuration
func NewRegistry(cfg *Config, logger hclog.Logger) (*Registry, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	registry := &Registry{
		backends: make(map[string]Backend),
	}

	if cfg == nil {
		return registry, nil
	}

	if cfg.Audit != nil && cfg.Audit.Enabled {
		registry.Register(NewAuditBackend(logger))
		logger.Info("initialized audit backend")
	}

	if cfg.Mail != nil && cfg.Mail.Enabled {
		backend := NewMailBackend(MailBackendConfig{
			SMTPHost:     cfg.Mail.SMTPHost,
			SMTPPort:     cfg.Mail.SMTPPort,
			SMTPUsername: cfg.Mail.SMTPUsername,
			SMTPPassword: cfg.Mail.SMTPPassword,
			FromAddress:  cfg.Mail.FromAddress,
			FromName:     cfg.Mail.FromName,
			UseTLS:       cfg.Mail.UseTLS,
		})
		registry.Register(backend)
		registry.backends["email"] = backend // Alias
		logger.Info("initialized mail backend",
			"host", cfg.Mail.SMTPHost,
			"port", cfg.Mail.SMTPPort,
			"from", cfg.Mail.FromAddress,
		)
	}

	return registry, nil
}

// Register adds a backend under its name, replacing any previous backend of
// the same name.
func (r *Registry) Register(b Backend) {
	if _, ok := r.backends[b.Name()]; !ok {
		r.order = append(r.order, b.Name())
	}
	r.backends[b.Name()] = b
}

// GetBackend returns a backend by name
func (r *Registry) GetBackend(name string) (Backend, bool) {
	backend, ok := r.backends[name]
	return backend, ok
}

// GetAll returns all registered backends in registration order
func (r *Registry) GetAll() []Backend {
	backends := make([]Backend, 0, len(r.order))
	for _, name := range r.order {
		backends = append(backends, r.backends[name])
	}
	return backends
}

// GetBackendNames returns the names of all registered backends
func (r *Registry) GetBackendNames() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
