// Package composer implements the vMCP Composer (spec §4.6): the
// aggregation of one vMCP's upstream capability snapshots and custom
// capabilities into a single merged view, with name-collision suffixing
// and a reverse index for single-origin recovery on dispatch.
package composer

import (
	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// originKind discriminates where a merged capability resolves to.
type originKind string

const (
	originCustom   originKind = "custom"
	originUpstream originKind = "upstream"
)

// origin records where one merged, possibly-suffixed capability name came
// from, so dispatch never has to re-derive it from the name string.
type origin struct {
	Kind   originKind
	Server string // set when Kind == originUpstream
	// Original is the capability's unsuffixed name/URI on its origin, used
	// to call back into the owning upstream after collision suffixing.
	Original string
}

// resolveNames assigns each upstream (server, name) pair its merged,
// collision-resolved name: unqualified if the bare name is still free once
// every custom name has claimed its slot, or "name@server" if a custom
// entry (or an earlier server in serverOrder) already took it. Custom
// definitions always keep their unqualified name (spec §4.6:
// custom-wins-over-upstream). serverOrder must be the vMCP's configured
// upstream order, not an alphabetical sort: first-occurrence-wins is
// defined relative to configuration order, so collision suffixing (and
// the returned emission order) has to follow it too. It also returns the
// resolved names in emission order — custom names first, then each
// server's names in serverOrder — so callers building an ordered capability
// list don't have to range a map themselves.
func resolveNames(customNames []string, serverOrder []string, upstreamByServer map[string][]string) (map[string]origin, []string) {
	reverse := make(map[string]origin, len(customNames))
	taken := make(map[string]bool, len(customNames))
	order := make([]string, 0, len(customNames))

	for _, name := range customNames {
		reverse[name] = origin{Kind: originCustom, Original: name}
		taken[name] = true
		order = append(order, name)
	}

	for _, server := range serverOrder {
		for _, name := range upstreamByServer[server] {
			resolved := name
			if taken[resolved] {
				resolved = name + "@" + server
			}
			taken[resolved] = true
			reverse[resolved] = origin{Kind: originUpstream, Server: server, Original: name}
			order = append(order, resolved)
		}
	}
	return reverse, order
}

func renamedTool(d vmcp.ToolDescriptor, name string) vmcp.ToolDescriptor {
	d.Name = name
	return d
}

func renamedResource(d vmcp.ResourceDescriptor, name string) vmcp.ResourceDescriptor {
	d.URI = name
	return d
}

func renamedPrompt(d vmcp.PromptDescriptor, name string) vmcp.PromptDescriptor {
	d.Name = name
	return d
}
