package config

import (
	"fmt"
	"strings"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// DefaultValidator implements comprehensive configuration validation.
type DefaultValidator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate performs comprehensive validation of cfg, accumulating every
// problem found rather than stopping at the first one.
func (v *DefaultValidator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", vmcp.ErrInvalidConfig)
	}

	var errs []string

	upstreamIDs := make(map[string]bool, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		if err := v.validateUpstream(u); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if upstreamIDs[u.ID] {
			errs = append(errs, fmt.Sprintf("duplicate upstream id %q", u.ID))
		}
		upstreamIDs[u.ID] = true
	}

	vmcpNames := make(map[string]bool, len(cfg.VMCPs))
	for _, vc := range cfg.VMCPs {
		if err := v.validateVMCP(vc, upstreamIDs); err != nil {
			errs = append(errs, err.Error())
		}
		if vmcpNames[vc.Name] {
			errs = append(errs, fmt.Sprintf("duplicate vmcp name %q", vc.Name))
		}
		vmcpNames[vc.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", vmcp.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func (*DefaultValidator) validateUpstream(u UpstreamConfig) error {
	if u.ID == "" {
		return fmt.Errorf("upstream: id is required")
	}
	if u.Endpoint == "" {
		return fmt.Errorf("upstream %q: endpoint is required", u.ID)
	}
	switch u.Transport {
	case "http", "sse":
	default:
		return fmt.Errorf("upstream %q: unsupported transport %q", u.ID, u.Transport)
	}
	switch u.Auth.Kind {
	case "", "none", "bearer", "apikey", "basic", "custom_header", "oauth2":
	default:
		return fmt.Errorf("upstream %q: unsupported auth kind %q", u.ID, u.Auth.Kind)
	}
	return nil
}

func (v *DefaultValidator) validateVMCP(vc VMCPConfig, upstreamIDs map[string]bool) error {
	if vc.Name == "" {
		return fmt.Errorf("vmcp: name is required")
	}
	for _, ref := range vc.Upstreams {
		if !upstreamIDs[ref] {
			return fmt.Errorf("vmcp %q: references unknown upstream %q", vc.Name, ref)
		}
	}
	for _, t := range vc.CustomTools {
		if err := v.validateCustomTool(vc.Name, t); err != nil {
			return err
		}
	}
	for _, r := range vc.CustomResources {
		if r.URI == "" {
			return fmt.Errorf("vmcp %q: custom resource missing uri", vc.Name)
		}
		if r.InlineText == "" && r.BlobPath == "" {
			return fmt.Errorf("vmcp %q: custom resource %q needs inline_text or blob_path", vc.Name, r.URI)
		}
	}
	for _, p := range vc.CustomPrompts {
		if p.Name == "" {
			return fmt.Errorf("vmcp %q: custom prompt missing name", vc.Name)
		}
		if p.Body == "" {
			return fmt.Errorf("vmcp %q: custom prompt %q missing body", vc.Name, p.Name)
		}
	}
	return nil
}

func (*DefaultValidator) validateCustomTool(vmcpName string, t CustomToolConfig) error {
	if t.Name == "" {
		return fmt.Errorf("vmcp %q: custom tool missing name", vmcpName)
	}
	switch t.Kind {
	case "script":
		if t.ScriptSource == "" {
			return fmt.Errorf("vmcp %q: custom tool %q missing script_source", vmcpName, t.Name)
		}
	case "http":
		if t.HTTPMethod == "" || t.HTTPURLTemplate == "" {
			return fmt.Errorf("vmcp %q: custom tool %q needs http_method and http_url_template", vmcpName, t.Name)
		}
	case "prompt":
		if t.PromptBody == "" {
			return fmt.Errorf("vmcp %q: custom tool %q missing prompt_body", vmcpName, t.Name)
		}
	default:
		return fmt.Errorf("vmcp %q: custom tool %q has unsupported kind %q", vmcpName, t.Name, t.Kind)
	}
	return nil
}
