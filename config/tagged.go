package config

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/indexer"
)

// TaggedURL is an option value of the form "<network>:<url>" where the
// network prefix is optional. The prefix may be an alias or a CAIP-2 id.
type TaggedURL struct {
	NetworkID string
	URL       *url.URL
}

// TaggedDeployment is the deployment-id counterpart of TaggedURL.
type TaggedDeployment struct {
	NetworkID  string
	Deployment indexer.SubgraphDeploymentID
}

// splitTag peels an optional network prefix off an option value. CAIP-2
// prefixes span two colon-separated segments, aliases one; anything else
// belongs to the value itself.
func splitTag(raw string) (tag, value string) {
	if strings.HasPrefix(raw, "eip155:") {
		rest := raw[len("eip155:"):]
		if i := strings.Index(rest, ":"); i >= 0 {
			return "eip155:" + rest[:i], rest[i+1:]
		}
		return "", raw
	}
	if i := strings.Index(raw, ":"); i >= 0 && indexer.HasNetworkAlias(raw[:i]) {
		return raw[:i], raw[i+1:]
	}
	return "", raw
}

// ParseTaggedURL parses an optionally network-tagged URL. The network id in
// the result is empty for untagged values and canonical CAIP-2 otherwise.
func ParseTaggedURL(raw string) (TaggedURL, error) {
	tag, value := splitTag(raw)
	out := TaggedURL{}
	if tag != "" {
		id, err := indexer.ResolveChainID(tag)
		if err != nil {
			return out, err
		}
		out.NetworkID = id
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return out, errors.Errorf("invalid URL %q", value)
	}
	out.URL = parsed
	return out, nil
}

// ParseTaggedDeployment parses an optionally network-tagged deployment id.
func ParseTaggedDeployment(raw string) (TaggedDeployment, error) {
	tag, value := splitTag(raw)
	out := TaggedDeployment{}
	if tag != "" {
		id, err := indexer.ResolveChainID(tag)
		if err != nil {
			return out, err
		}
		out.NetworkID = id
	}
	deployment, err := indexer.NewSubgraphDeploymentID(value)
	if err != nil {
		return out, err
	}
	out.Deployment = deployment
	return out, nil
}

// NetworkOptions are the network-tagged option groups accepted on the
// command line when several networks are configured through one flag set.
type NetworkOptions struct {
	Providers          []string
	EpochSubgraphs     []string
	NetworkSubgraphs   []string
	NetworkDeployments []string
}

// ResolvedEndpoints are the per-network endpoints assembled from the
// tagged option groups. The network id is empty when the options were
// untagged (single-network usage).
type ResolvedEndpoints struct {
	NetworkID         string
	Provider          *url.URL
	EpochSubgraph     *url.URL
	NetworkSubgraph   *url.URL
	NetworkDeployment *indexer.SubgraphDeploymentID
}

type taggedGroup struct {
	name string
	ids  []string
}

// ResolveNetworkOptions parses the tagged option groups and checks that
// they balance: every non-empty group must cover the same set of networks,
// with no duplicates, and tagged and untagged values must not be mixed.
func ResolveNetworkOptions(opts NetworkOptions) (map[string]*ResolvedEndpoints, error) {
	providers := make(map[string]TaggedURL)
	epochs := make(map[string]TaggedURL)
	networks := make(map[string]TaggedURL)
	deployments := make(map[string]TaggedDeployment)
	var groups []taggedGroup

	parseURLGroup := func(name string, values []string, into map[string]TaggedURL) error {
		group := taggedGroup{name: name}
		for _, raw := range values {
			parsed, err := ParseTaggedURL(raw)
			if err != nil {
				return errors.Wrapf(err, "option %s", name)
			}
			if _, dup := into[parsed.NetworkID]; dup {
				return errors.Errorf("option %s has duplicate values for network %q", name, parsed.NetworkID)
			}
			into[parsed.NetworkID] = parsed
			group.ids = append(group.ids, parsed.NetworkID)
		}
		groups = append(groups, group)
		return nil
	}

	if err := parseURLGroup("network-provider", opts.Providers, providers); err != nil {
		return nil, err
	}
	if err := parseURLGroup("epoch-subgraph-endpoint", opts.EpochSubgraphs, epochs); err != nil {
		return nil, err
	}
	if err := parseURLGroup("network-subgraph-endpoint", opts.NetworkSubgraphs, networks); err != nil {
		return nil, err
	}
	deploymentGroup := taggedGroup{name: "network-subgraph-deployment"}
	for _, raw := range opts.NetworkDeployments {
		parsed, err := ParseTaggedDeployment(raw)
		if err != nil {
			return nil, errors.Wrap(err, "option network-subgraph-deployment")
		}
		if _, dup := deployments[parsed.NetworkID]; dup {
			return nil, errors.Errorf("option network-subgraph-deployment has duplicate values for network %q", parsed.NetworkID)
		}
		deployments[parsed.NetworkID] = parsed
		deploymentGroup.ids = append(deploymentGroup.ids, parsed.NetworkID)
	}
	groups = append(groups, deploymentGroup)

	if err := checkGroupBalance(groups); err != nil {
		return nil, err
	}

	resolved := make(map[string]*ResolvedEndpoints)
	for id, provider := range providers {
		endpoints := &ResolvedEndpoints{NetworkID: id, Provider: provider.URL}
		if epoch, ok := epochs[id]; ok {
			endpoints.EpochSubgraph = epoch.URL
		}
		if network, ok := networks[id]; ok {
			endpoints.NetworkSubgraph = network.URL
		}
		if deployment, ok := deployments[id]; ok {
			d := deployment.Deployment
			endpoints.NetworkDeployment = &d
		}
		if endpoints.NetworkSubgraph == nil && endpoints.NetworkDeployment == nil {
			return nil, errors.Errorf("network %q has neither a network subgraph endpoint nor a deployment", id)
		}
		resolved[id] = endpoints
	}
	return resolved, nil
}

// checkGroupBalance enforces the cross-group invariants. Empty groups are
// exempt; an option set that tags some values but not others cannot be
// lined up across networks and is rejected.
func checkGroupBalance(groups []taggedGroup) error {
	tagged := false
	untagged := false
	var mixed []string
	for _, g := range groups {
		for _, id := range g.ids {
			if id == "" {
				untagged = true
			} else {
				tagged = true
			}
		}
		if len(g.ids) > 0 {
			mixed = append(mixed, g.name)
		}
	}
	if tagged && untagged {
		return errors.Errorf("indexer agent was configured with mixed network identifiers for options: %s", strings.Join(mixed, ", "))
	}
	if untagged {
		for _, g := range groups {
			if len(g.ids) > 1 {
				return errors.Errorf("option %s has multiple untagged values", g.name)
			}
		}
		return nil
	}

	var reference taggedGroup
	for _, g := range groups {
		if len(g.ids) == 0 {
			continue
		}
		if reference.ids == nil {
			reference = g
			continue
		}
		if !sameIDSet(reference.ids, g.ids) {
			return errors.Errorf("options %s and %s cover different networks", reference.name, g.name)
		}
	}
	return nil
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
