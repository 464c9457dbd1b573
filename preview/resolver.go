// CLAUDE:SUMMARY Ordered resolver chain: local binary (uploads, cache) → remote viewer → demo placeholder.
package preview

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/viewer"
)

// Resolver is one step of the priority chain.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, ref document.Ref) Outcome
}

// localBinary renders bytes held locally: this process's uploads first,
// then the binary cache.
type localBinary struct{ o *Orchestrator }

func (localBinary) Name() string { return "local-binary" }

func (r localBinary) Resolve(ctx context.Context, ref document.Ref) Outcome {
	data, source := r.o.uploads.Get(ref.ID), "uploads"
	if data == nil && r.o.cache != nil {
		data, source = r.o.cache.Get(ctx, ref.ID), "cache"
	}
	if data == nil {
		return notApplicable()
	}

	switch ref.Type {
	case document.TypePDF:
		pdf, err := r.o.pipe.OpenPDF(data)
		if err != nil {
			return failed(fmt.Errorf("%s binary: %w", source, err))
		}
		return resolved(Resolution{Strategy: StrategyLocalPDF, State: StateShowingLocalPDF, PDF: pdf})
	case document.TypeDoc:
		html, err := r.o.pipe.ConvertDocx(data)
		if err != nil {
			return failed(fmt.Errorf("%s binary: %w", source, err))
		}
		return resolved(Resolution{Strategy: StrategyLocalDocx, State: StateShowingLocalDocx, HTML: html})
	}
	return notApplicable()
}

// remoteViewer embeds the document in a third-party viewer and starts a
// background cache warm-up. It never waits for the viewer.
type remoteViewer struct{ o *Orchestrator }

func (remoteViewer) Name() string { return "remote-viewer" }

func (r remoteViewer) Resolve(_ context.Context, ref document.Ref) Outcome {
	if ref.Origin != document.OriginRemote {
		return notApplicable()
	}
	kind := viewer.KindFor(ref.Type)
	strategy := StrategyRemoteGoogle
	if kind == viewer.Microsoft {
		strategy = StrategyRemoteMicrosoft
	}
	r.o.warm(ref)
	return resolved(Resolution{
		Strategy: strategy,
		State:    StateShowingRemote,
		EmbedURL: viewer.BuildEmbedURL(kind, ref.RemoteURL),
	})
}

// demoPlaceholder shows canned sample content for built-in demo documents.
type demoPlaceholder struct{}

func (demoPlaceholder) Name() string { return "demo-placeholder" }

func (demoPlaceholder) Resolve(_ context.Context, ref document.Ref) Outcome {
	if ref.Origin != document.OriginDemo {
		return notApplicable()
	}
	return resolved(Resolution{
		Strategy: StrategyLocalDocx,
		State:    StateShowingLocalDocx,
		HTML:     docpipe.DemoHTML(ref.Name, ref.UpdatedAt),
		Demo:     true,
	})
}

// runChain evaluates resolvers in order. The first Resolved wins; Failed is
// logged and skipped. Exhaustion yields an Error resolution wrapping ErrNotFound.
func (o *Orchestrator) runChain(ctx context.Context, ref document.Ref) (Resolution, error) {
	for _, r := range o.resolvers {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		out := r.Resolve(ctx, ref)
		switch out.Kind {
		case Resolved:
			o.logger.Debug("preview: resolved", "document", ref.ID, "resolver", r.Name(), "strategy", out.Resolution.Strategy)
			return out.Resolution, nil
		case Failed:
			o.logger.Info("preview: resolver failed, falling through",
				"document", ref.ID, "resolver", r.Name(), "reason", out.Reason,
				"decode", errors.Is(out.Reason, docpipe.ErrDecode))
		}
	}

	res := Resolution{
		Strategy:  StrategyNone,
		State:     StateError,
		ManualURL: ref.RemoteURL,
		Error:     fmt.Sprintf("No renderable source found for %q.", ref.Name),
	}
	return res, fmt.Errorf("%w: document %s", ErrNotFound, ref.ID)
}
