// Package dispatch runs every tool call through the governance pipeline:
// input sanitation and injection scan, CORS, request signature, rate limit,
// cache lookup, then the external call, with security events recorded on
// each denial path.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/cors"
	"github.com/tubegate/tubegate/internal/observability"
	"github.com/tubegate/tubegate/internal/ratelimit"
	"github.com/tubegate/tubegate/internal/sanitize"
	"github.com/tubegate/tubegate/internal/seclog"
	"github.com/tubegate/tubegate/internal/signing"
)

// deniedMessage is the only text a blocked caller sees. The concrete reason
// is recorded server-side.
const deniedMessage = "request denied by security policy"

// Meta carries transport-level facts into the pipeline. The HTTP layer
// attaches it to the request context; internal callers may omit it.
type Meta struct {
	Origin   string
	Method   string
	Path     string
	Body     []byte
	Identity ratelimit.Identity

	// Signature fields, present when the client signed the request.
	Signature    signing.Signature
	HasSignature bool

	// LimitChecked marks that the transport already charged the rate
	// limiter for this request.
	LimitChecked bool
}

type metaKey struct{}

// WithMeta attaches transport metadata to ctx.
func WithMeta(ctx context.Context, m *Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

// MetaFrom returns the transport metadata on ctx, or nil.
func MetaFrom(ctx context.Context) *Meta {
	m, _ := ctx.Value(metaKey{}).(*Meta)
	return m
}

// Request describes one tool invocation entering the pipeline.
type Request struct {
	Tool      string
	Args      map[string]string
	Class     cache.OpClass
	Cacheable bool
}

// Func performs the actual operation once governance passes. It receives the
// sanitized argument set.
type Func func(ctx context.Context, args map[string]string) (any, error)

// Deps are the collaborators a Dispatcher wires together. Signer and Cache
// may be nil when the corresponding feature is disabled.
type Deps struct {
	Sanitizer *sanitize.Sanitizer
	CORS      *cors.Policy
	Signer    *signing.Signer
	Limiter   *ratelimit.Limiter
	Cache     *cache.Cache
	SecLog    *seclog.Logger
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Dispatcher executes tool calls through the governance pipeline.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds a Dispatcher.
func New(deps Deps) *Dispatcher {
	return &Dispatcher{
		deps:   deps,
		logger: deps.Logger.With("component", "dispatch"),
		tracer: otel.Tracer("tubegate/dispatch"),
	}
}

// Execute runs req through the pipeline and returns the operation result as
// JSON. Errors are always *Error.
func (d *Dispatcher) Execute(ctx context.Context, req Request, fn Func) ([]byte, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch."+req.Tool,
		trace.WithAttributes(attribute.String("tool", req.Tool)))
	defer span.End()

	payload, err := d.execute(ctx, req, fn)
	if err != nil {
		derr := Classify(err)
		span.SetStatus(codes.Error, string(derr.Kind))
		d.deps.Metrics.IncToolCall(req.Tool, outcomeFor(derr.Kind))
		return nil, derr
	}
	d.deps.Metrics.IncToolCall(req.Tool, "ok")
	return payload, nil
}

func (d *Dispatcher) execute(ctx context.Context, req Request, fn Func) ([]byte, error) {
	meta := MetaFrom(ctx)
	identity := identityKey(meta)

	args, err := d.sanitizeArgs(req, identity)
	if err != nil {
		return nil, err
	}

	if meta != nil && meta.Origin != "" {
		if !d.deps.CORS.OriginAllowed(meta.Origin) {
			d.deps.Metrics.IncCORSDenied()
			d.deps.SecLog.Record(seclog.EventCORSViolation, identity,
				fmt.Sprintf("origin %q not allowed", meta.Origin),
				map[string]string{"tool": req.Tool})
			return nil, NewError(KindDenied, deniedMessage)
		}
	}

	if d.deps.Signer != nil && meta != nil {
		if err := d.verifySignature(req.Tool, identity, meta); err != nil {
			return nil, err
		}
	}

	if meta == nil || !meta.LimitChecked {
		var id ratelimit.Identity
		if meta != nil {
			id = meta.Identity
		}
		res := d.deps.Limiter.Check(id)
		if !res.Allowed {
			d.deps.SecLog.Record(seclog.EventRateLimitExceeded, identity,
				fmt.Sprintf("%s window limit %d exceeded", res.Window, res.Limit),
				map[string]string{"tool": req.Tool})
			derr := NewError(KindDenied,
				fmt.Sprintf("rate limit exceeded, retry in %ds", int(res.RetryAfter.Seconds())+1))
			derr.RetryAfter = res.RetryAfter
			return nil, derr
		}
	}

	var key string
	if req.Cacheable && d.deps.Cache != nil {
		key = cache.Fingerprint(req.Tool, args)
		if payload, ok := d.deps.Cache.Get(ctx, key, req.Class); ok {
			return payload, nil
		}
	}

	out, err := fn(ctx, args)
	if err != nil {
		derr := Classify(err)
		if derr.Kind == KindValidation {
			d.deps.Metrics.IncValidationError()
			d.deps.SecLog.Record(seclog.EventValidationFailure, identity,
				derr.Message, map[string]string{"tool": req.Tool})
		}
		return nil, derr
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "internal error", cause: err}
	}

	if key != "" {
		d.deps.Cache.Put(ctx, key, payload, req.Class)
	}
	return payload, nil
}

// sanitizeArgs cleans every argument and blocks flagged input. Returns a new
// map so callers keep their originals.
func (d *Dispatcher) sanitizeArgs(req Request, identity string) (map[string]string, error) {
	args := make(map[string]string, len(req.Args))
	for k, v := range req.Args {
		cleaned, det := d.deps.Sanitizer.Check(v)
		if det.Flagged {
			d.deps.Metrics.IncInjectionBlocked()
			d.deps.SecLog.Record(seclog.EventInjectionDetected, identity, det.Reason,
				map[string]string{"tool": req.Tool, "arg": k})
			return nil, NewError(KindDenied, deniedMessage)
		}
		args[k] = cleaned
	}
	return args, nil
}

func (d *Dispatcher) verifySignature(tool, identity string, meta *Meta) error {
	if !meta.HasSignature {
		d.deps.Metrics.IncSignatureInvalid()
		d.deps.SecLog.Record(seclog.EventSignatureInvalid, identity,
			"signature required but absent", map[string]string{"tool": tool})
		return NewError(KindDenied, deniedMessage)
	}

	verdict := d.deps.Signer.Verify(meta.Method, meta.Path, meta.Body, meta.Signature)
	switch verdict.Status {
	case signing.StatusValid:
		return nil
	case signing.StatusReplay:
		d.deps.Metrics.IncReplayBlocked()
		d.deps.SecLog.Record(seclog.EventReplayAttack, identity, verdict.Detail,
			map[string]string{"tool": tool})
	default:
		d.deps.Metrics.IncSignatureInvalid()
		d.deps.SecLog.Record(seclog.EventSignatureInvalid, identity, verdict.Detail,
			map[string]string{"tool": tool, "status": string(verdict.Status)})
	}
	return NewError(KindDenied, deniedMessage)
}

func identityKey(meta *Meta) string {
	if meta == nil {
		return ""
	}
	_, key := meta.Identity.Resolve()
	return key
}

func outcomeFor(kind Kind) string {
	if kind == KindDenied {
		return "denied"
	}
	return "error"
}
