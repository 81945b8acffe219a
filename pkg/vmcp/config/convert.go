package config

import (
	"time"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// ToUpstreamServer converts one loaded UpstreamConfig to the domain type the
// Upstream Registry stores.
func (u UpstreamConfig) ToUpstreamServer() vmcp.UpstreamServer {
	enabled := true
	if u.Enabled != nil {
		enabled = *u.Enabled
	}
	return vmcp.UpstreamServer{
		ID:        u.ID,
		Name:      u.Name,
		Transport: vmcp.TransportKind(u.Transport),
		Endpoint:  u.Endpoint,
		Headers:   u.Headers,
		Auth:      u.Auth.toAuthPolicy(),
		Enabled:   enabled,
	}
}

func (a AuthConfig) toAuthPolicy() vmcp.AuthPolicy {
	policy := vmcp.AuthPolicy{
		Kind:       vmcp.AuthKind(a.Kind),
		Token:      a.Token,
		HeaderName: a.HeaderName,
		Username:   a.Username,
		Password:   a.Password,
		Headers:    a.Headers,
	}
	if a.OAuth != nil {
		policy.OAuth = &vmcp.OAuthConfig{
			ClientID:     a.OAuth.ClientID,
			ClientSecret: a.OAuth.ClientSecret,
			AuthURL:      a.OAuth.AuthURL,
			TokenURL:     a.OAuth.TokenURL,
			RedirectURL:  a.OAuth.RedirectURL,
			Scopes:       a.OAuth.Scopes,
		}
	}
	return policy
}

// ToVMCP converts one loaded VMCPConfig to the domain type the Composer
// operates on. Custom resources take their Bytes from InlineText only;
// BlobPath is not read and BlobID is left empty.
func (vc VMCPConfig) ToVMCP() vmcp.VMCP {
	out := vmcp.VMCP{
		ID:           vc.ID,
		Name:         vc.Name,
		Description:  vc.Description,
		SystemPrompt: vc.SystemPrompt,
		Deadline:     time.Duration(vc.Deadline),
	}
	for _, id := range vc.Upstreams {
		out.Upstreams = append(out.Upstreams, vmcp.UpstreamRef{ServerID: id})
	}
	for _, t := range vc.CustomTools {
		out.CustomTools = append(out.CustomTools, t.toCustomTool())
	}
	for _, r := range vc.CustomResources {
		out.CustomRes = append(out.CustomRes, r.toCustomResource())
	}
	for _, p := range vc.CustomPrompts {
		out.CustomPrompts = append(out.CustomPrompts, vmcp.CustomPrompt{
			Name:        p.Name,
			Description: p.Description,
			InputSchema: p.InputSchema,
			Body:        p.Body,
		})
	}
	for _, e := range vc.Env {
		out.Env = append(out.Env, vmcp.EnvVar{Name: e.Name, Value: e.Value, Secret: e.Secret})
	}
	return out
}

func (t CustomToolConfig) toCustomTool() vmcp.CustomTool {
	return vmcp.CustomTool{
		Name:             t.Name,
		Description:      t.Description,
		Kind:             vmcp.CustomToolKind(t.Kind),
		InputSchema:      t.InputSchema,
		ScriptSource:     t.ScriptSource,
		ScriptEnv:        t.ScriptEnv,
		HTTPMethod:       t.HTTPMethod,
		HTTPURLTemplate:  t.HTTPURLTemplate,
		HTTPHeaders:      t.HTTPHeaders,
		HTTPBodyTemplate: t.HTTPBodyTemplate,
		HTTPAuth: vmcp.HTTPAuthBinding{
			Kind:       vmcp.AuthKind(t.HTTPAuth.Kind),
			Token:      t.HTTPAuth.Token,
			HeaderName: t.HTTPAuth.HeaderName,
			Username:   t.HTTPAuth.Username,
			Password:   t.HTTPAuth.Password,
		},
		HTTPResponseKind: vmcp.ResponseKind(t.HTTPResponseKind),
		PromptBody:       t.PromptBody,
	}
}

func (r CustomResourceConfig) toCustomResource() vmcp.CustomResource {
	return vmcp.CustomResource{
		URI:      r.URI,
		Name:     r.Name,
		MimeType: r.MimeType,
		Bytes:    []byte(r.InlineText),
	}
}
