// Package offload implements the offload policy compiler and per-push
// orchestrator (spec §4.5, §4.6), adapted from
// original_source/lop-offload.c.
package offload

import (
	"math"

	"github.com/cdcstore/lop/internal/hashalgo"
)

// FilterChoice names the recognized shapes of a remote's partial-clone
// filter spec (spec §4.5).
type FilterChoice int

const (
	FilterOther FilterChoice = iota
	FilterBlobNone
	FilterBlobLimit
	FilterCombine
)

// FilterSpec is the input to rule compilation: a parsed filter option tree,
// generalized from list_objects_filter_options.
type FilterSpec struct {
	Choice         FilterChoice
	BlobLimitValue uint64
	Sub            []FilterSpec
}

// Unlimited is the "no limit" sentinel a blob:limit=N filter can carry,
// equivalent to the C source's UINTMAX_MAX check.
const Unlimited = math.MaxUint64

// RouteRule is one compiled route: a remote name plus the condition under
// which a blob is routed to it.
type RouteRule struct {
	Remote    string
	SizeAbove uint64
	HasSize   bool
	MatchAll  bool
}

// applyFilter merges spec into rule, recursing into combine: sub-filters
// exactly as lop_route_rule_apply_filter does.
func applyFilter(rule *RouteRule, spec FilterSpec) {
	switch spec.Choice {
	case FilterBlobNone:
		rule.MatchAll = true
	case FilterBlobLimit:
		if spec.BlobLimitValue >= Unlimited {
			rule.MatchAll = true
		} else {
			rule.HasSize = true
			rule.SizeAbove = spec.BlobLimitValue
		}
	case FilterCombine:
		for _, sub := range spec.Sub {
			applyFilter(rule, sub)
		}
	}
}

// CompileRule builds a RouteRule for remote from its filter spec. ok is
// false if the compiled rule carries neither MatchAll nor HasSize, in which
// case the remote is not added to the policy's routes.
func CompileRule(remote string, spec FilterSpec) (RouteRule, bool) {
	rule := RouteRule{Remote: remote}
	applyFilter(&rule, spec)
	if !rule.MatchAll && !rule.HasSize {
		return RouteRule{}, false
	}
	return rule, true
}

// PromisorInfo is one configured remote's promisor eligibility and filter,
// the information this package consumes from the repository's remote
// registry (spec §4.2, §9: "this module consumes it rather than designing
// it").
type PromisorInfo struct {
	Name      string
	Enabled   bool
	Filter    FilterSpec
	HasFilter bool
}

// Policy holds whether offload is active for this push and the compiled
// routing table, generalized from the C source's process-wide
// lop_policy/lop_policy_initialized singleton into an explicit value the
// caller constructs and discards per push (spec §9).
type Policy struct {
	Enabled bool
	Routes  []RouteRule
}

// ReloadRoutes recompiles policy.Routes from promisors, keeping only
// eligible remotes with a non-trivial compiled rule. If the policy is
// disabled, Routes is cleared and left empty.
func ReloadRoutes(policy *Policy, promisors []PromisorInfo) {
	policy.Routes = nil
	if !policy.Enabled {
		return
	}

	for _, p := range promisors {
		if !p.Enabled || !p.HasFilter {
			continue
		}
		rule, ok := CompileRule(p.Name, p.Filter)
		if !ok {
			continue
		}
		policy.Routes = append(policy.Routes, rule)
	}
}

// BlobInfo is the (oid, optional path, size) tuple the push-level enumerator
// supplies for every newly reachable blob (spec §4.6, §9).
type BlobInfo struct {
	OID  hashalgo.OID
	Path string
	Size int64
}

// routeMatches reports whether rule applies to blob.
func routeMatches(rule RouteRule, blob BlobInfo) bool {
	if rule.MatchAll {
		return true
	}
	if rule.HasSize && uint64(blob.Size) < rule.SizeAbove {
		return false
	}
	return rule.HasSize
}

// MatchBlob returns the first route (in policy order) whose rule matches
// blob, or ok=false if none do or the policy is disabled.
func MatchBlob(policy *Policy, blob BlobInfo) (remote string, ok bool) {
	if !policy.Enabled {
		return "", false
	}
	for _, rule := range policy.Routes {
		if routeMatches(rule, blob) {
			return rule.Remote, true
		}
	}
	return "", false
}
