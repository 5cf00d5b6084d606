// Package errs attaches stable indexer error codes to failures so that
// logs and metrics can be aggregated per error class across releases.
package errs

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Code identifies a stable indexer error class. Codes are never reused or
// renumbered.
type Code string

// Configuration errors.
const (
	IE001 Code = "IE001" // Failed to run database migrations
	IE002 Code = "IE002" // Invalid Ethereum address
	IE043 Code = "IE043" // Invalid network specification
	IE044 Code = "IE044" // Failed to load network specification file
)

// Upstream availability errors.
const (
	IE003 Code = "IE003" // Failed to index network subgraph
	IE004 Code = "IE004" // Failed to synchronize with network
	IE009 Code = "IE009" // Failed to query subgraph deployments worth indexing
	IE010 Code = "IE010" // Failed to query indexer allocations
	IE011 Code = "IE011" // Failed to query claimable indexer allocations
	IE018 Code = "IE018" // Failed to query indexing status API
	IE019 Code = "IE019" // Failed to query proof of indexing
	IE035 Code = "IE035" // Failed to query epoch start block
	IE042 Code = "IE042" // Failed to query epoch subgraph
)

// Contract read errors.
const (
	IE006 Code = "IE006" // Failed to cross-check allocation state with contracts
	IE007 Code = "IE007" // Failed to check for network pause
	IE008 Code = "IE008" // Failed to check operator status for indexer
	IE023 Code = "IE023" // Failed to query current epoch
	IE041 Code = "IE041" // Failed to query operator balance
)

// Contract write errors.
const (
	IE012 Code = "IE012" // Failed to register indexer
	IE013 Code = "IE013" // Failed to allocate: insufficient free stake
	IE014 Code = "IE014" // Failed to allocate: allocation not created on chain
	IE015 Code = "IE015" // Failed to close allocation
	IE016 Code = "IE016" // Failed to claim allocation
	IE024 Code = "IE024" // Failed to allocate: invalid allocation amount
	IE036 Code = "IE036" // Failed to derive allocation signer
	IE037 Code = "IE037" // Transaction reverted
	IE038 Code = "IE038" // Failed to confirm transaction
)

// Paused or unauthorized conditions.
const (
	IE039 Code = "IE039" // Network is paused
	IE040 Code = "IE040" // Operator not authorized for indexer
)

// Graph node management errors.
const (
	IE020 Code = "IE020" // Failed to ensure subgraph deployment is indexing
	IE021 Code = "IE021" // Failed to reassign subgraph deployment
	IE022 Code = "IE022" // Failed to remove subgraph deployment
)

// Local data integrity errors.
const (
	IE005 Code = "IE005" // Failed to reconcile indexer and network
	IE017 Code = "IE017" // Failed to ensure default global indexing rule
	IE025 Code = "IE025" // Failed to store potential POI disputes
	IE026 Code = "IE026" // Failed to store pending POI disputes
	IE027 Code = "IE027" // Failed to store indexing rules
	IE028 Code = "IE028" // Failed to query indexing rules
	IE030 Code = "IE030" // Failed to query POI disputes
	IE031 Code = "IE031" // Failed to delete POI disputes
	IE032 Code = "IE032" // Failed to queue allocation action
	IE033 Code = "IE033" // Failed to fetch allocation actions
	IE034 Code = "IE034" // Failed to update allocation action
	IE045 Code = "IE045" // Failed to mark allocation as closed for receipt collection
)

var messages = map[Code]string{
	IE001: "Failed to run database migrations",
	IE002: "Invalid Ethereum address",
	IE003: "Failed to index network subgraph",
	IE004: "Failed to synchronize with network",
	IE005: "Failed to reconcile indexer and network",
	IE006: "Failed to cross-check allocation state with contracts",
	IE007: "Failed to check for network pause",
	IE008: "Failed to check operator status for indexer",
	IE009: "Failed to query subgraph deployments worth indexing",
	IE010: "Failed to query indexer allocations",
	IE011: "Failed to query claimable indexer allocations",
	IE012: "Failed to register indexer",
	IE013: "Failed to allocate: insufficient free stake",
	IE014: "Failed to allocate: allocation not created on chain",
	IE015: "Failed to close allocation",
	IE016: "Failed to claim allocation",
	IE017: "Failed to ensure default global indexing rule",
	IE018: "Failed to query indexing status API",
	IE019: "Failed to query proof of indexing",
	IE020: "Failed to ensure subgraph deployment is indexing",
	IE021: "Failed to reassign subgraph deployment",
	IE022: "Failed to remove subgraph deployment",
	IE023: "Failed to query current epoch",
	IE024: "Failed to allocate: invalid allocation amount",
	IE025: "Failed to store potential POI disputes",
	IE026: "Failed to store pending POI disputes",
	IE027: "Failed to store indexing rules",
	IE028: "Failed to query indexing rules",
	IE030: "Failed to query POI disputes",
	IE031: "Failed to delete POI disputes",
	IE032: "Failed to queue allocation action",
	IE033: "Failed to fetch allocation actions",
	IE034: "Failed to update allocation action",
	IE035: "Failed to query epoch start block",
	IE036: "Failed to derive allocation signer",
	IE037: "Transaction reverted",
	IE038: "Failed to confirm transaction",
	IE039: "Network is paused",
	IE040: "Operator not authorized for indexer",
	IE041: "Failed to query operator balance",
	IE042: "Failed to query epoch subgraph",
	IE043: "Invalid network specification",
	IE044: "Failed to load network specification file",
	IE045: "Failed to mark allocation as closed for receipt collection",
}

var errorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indexer_agent",
	Name:      "errors_total",
	Help:      "Total number of indexer errors seen, by stable error code.",
}, []string{"code"})

// Message returns the human readable description registered for the code.
func (c Code) Message() string {
	return messages[c]
}

// Error couples a stable code with the underlying cause of a failure.
type Error struct {
	Code  Code
	Cause error
}

// New returns a coded error without an underlying cause.
func New(code Code) *Error {
	errorCounter.WithLabelValues(string(code)).Inc()
	return &Error{Code: code}
}

// Wrap attaches a stable code to the given cause. A nil cause behaves like
// New.
func Wrap(cause error, code Code) *Error {
	errorCounter.WithLabelValues(string(code)).Inc()
	return &Error{Code: code, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Code.Message())
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Code.Message(), e.Cause)
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the stable code from anywhere in the error chain. It
// returns an empty code for uncoded errors.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
