package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exportPolicy decides which span attributes reach the exporter. Part ids
// and timestamps identify individual products and never leave the process;
// everything else must be a known key or carry a known namespace.
type exportPolicy struct {
	namespaces []string
	keys       map[string]bool
	denied     map[string]bool
}

var defaultPolicy = exportPolicy{
	namespaces: []string{
		"fillspc.", "pca.", "spc.", "dataset.", "chunk.",
		"http.", "mcp.", "error.", "service.",
	},
	keys: map[string]bool{
		"rows": true, "workers": true, "stage": true, "error": true,
	},
	denied: map[string]bool{
		"part_id": true, "entry_timestamp": true, "reject_type": true,
		"request.body": true, "response.body": true,
	},
}

func (p exportPolicy) allows(key string) bool {
	if p.denied[key] || strings.HasSuffix(key, ".part_id") {
		return false
	}

	if p.keys[key] {
		return true
	}

	for _, ns := range p.namespaces {
		if strings.HasPrefix(key, ns) {
			return true
		}
	}

	return false
}

// attributeFilter is a SpanProcessor that applies exportPolicy to every
// ended span before forwarding it to the delegate.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	policy   exportPolicy
	logger   *slog.Logger
	warned   sync.Map
}

// NewAttributeFilter returns a SpanProcessor that strips span attributes
// outside the export policy: per-part identifiers (part_id, entry_timestamp,
// reject_type), request and response bodies, and unknown keys. When logger
// is non-nil each stripped key is logged once at WARN.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, policy: defaultPolicy, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd hands the delegate a filtered view; ended spans are read-only.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, filter: f})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) keep(key string) bool {
	if f.policy.allows(key) {
		return true
	}

	if f.logger != nil {
		if _, seen := f.warned.LoadOrStore(key, struct{}{}); !seen {
			f.logger.Warn("span attribute dropped by export policy", "key", key)
		}
	}

	return false
}

// filteredSpan is a ReadOnlySpan view exposing only kept attributes.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	filter *attributeFilter
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	all := s.ReadOnlySpan.Attributes()
	kept := make([]attribute.KeyValue, 0, len(all))

	for _, kv := range all {
		if s.filter.keep(string(kv.Key)) {
			kept = append(kept, kv)
		}
	}

	return kept
}
