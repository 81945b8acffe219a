package composer

import "github.com/vmcpio/vmcpd/pkg/vmcp"

// freezeEnv builds the environment map and secret-value list used by this
// vMCP's invocations: a map for @config lookups and template binding, and
// a flat list of secret values that must be redacted from every error,
// log line, and usage-log entry (spec §7, §8 invariant 7).
func freezeEnv(vars []vmcp.EnvVar) (env map[string]string, secrets []string) {
	env = make(map[string]string, len(vars))
	for _, v := range vars {
		env[v.Name] = v.Value
		if v.Secret {
			secrets = append(secrets, v.Value)
		}
	}
	return env, secrets
}

// envAsConfig copies the flat environment map into the map[string]any
// shape the template Evaluator's @config lookups expect.
func envAsConfig(env map[string]string) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
