package main

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/rexliu/credrelay/pkg/config"
	"github.com/rexliu/credrelay/pkg/message"
)

// policy approves or denies credential creation per relying party.
type policy struct {
	defaultApprove     bool
	requireOriginMatch bool
	rules              map[string]bool
}

func newPolicy(cfg config.PolicyConfig) *policy {
	p := &policy{
		defaultApprove:     cfg.DefaultAction == config.ActionApprove,
		requireOriginMatch: cfg.RequireOriginMatch,
		rules:              make(map[string]bool, len(cfg.Rules)),
	}
	for _, rule := range cfg.Rules {
		p.rules[strings.ToLower(rule.RPID)] = rule.Action == config.ActionApprove
	}
	return p
}

// rpIDFor returns the relying party id, defaulting to the caller's host.
func rpIDFor(data message.CredentialRegistrationParams) string {
	if data.RP.ID != "" {
		return strings.ToLower(data.RP.ID)
	}
	if u, err := url.Parse(data.Origin); err == nil {
		return strings.ToLower(u.Hostname())
	}
	return ""
}

// decide returns the decision for a creation request that arrived from
// peerOrigin, with the reason for a denial.
func (p *policy) decide(peerOrigin string, data message.CredentialRegistrationParams) (bool, string) {
	u, err := url.Parse(data.Origin)
	if err != nil || u.Hostname() == "" {
		return false, fmt.Sprintf("unparseable origin %q", data.Origin)
	}
	host := strings.ToLower(u.Hostname())
	rpID := rpIDFor(data)
	if !registrableFor(rpID, host) {
		return false, fmt.Sprintf("rp id %q is not a registrable suffix of %q", rpID, host)
	}
	// only web peers claim an origin comparable to the page's
	if p.requireOriginMatch && isWebOrigin(peerOrigin) && peerOrigin != data.Origin {
		return false, fmt.Sprintf("page origin %q does not match peer %q", data.Origin, peerOrigin)
	}
	for id := rpID; id != ""; id = parentDomain(id) {
		if approve, ok := p.rules[id]; ok {
			if !approve {
				return false, "denied by rule for " + id
			}
			return true, ""
		}
	}
	if !p.defaultApprove {
		return false, "denied by default"
	}
	return true, ""
}

// registrableFor reports whether rpID is host itself or a parent of host no
// shorter than host's eTLD+1, so "com" or "github.io" never qualify.
func registrableFor(rpID, host string) bool {
	if rpID == host {
		return true
	}
	if !strings.HasSuffix(host, "."+rpID) {
		return false
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return rpID == site || strings.HasSuffix(rpID, "."+site)
}

func isWebOrigin(origin string) bool {
	return strings.HasPrefix(origin, "https://") || strings.HasPrefix(origin, "http://")
}

func parentDomain(domain string) string {
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		return domain[i+1:]
	}
	return ""
}
