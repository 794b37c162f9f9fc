package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"riskagent/browser"
	"riskagent/utils"
)

// Identity carries the optional caller identifiers merged into a payload.
type Identity struct {
	SessionID *string
	UserID    *string
}

type SessionSource interface {
	Identity(w browser.Window) Identity
}

// StorageSession reads sessionId and userId from the page's session storage.
// Missing keys and unreadable storage leave the identifier absent.
type StorageSession struct{}

func (StorageSession) Identity(w browser.Window) Identity {
	read := func(key string) *string {
		v, ok := attempt(func() (string, error) {
			s, err := w.Storage(browser.SessionStorage)
			if err != nil {
				return "", err
			}
			v, found, err := s.GetItem(key)
			if err != nil {
				return "", err
			}
			if !found {
				return "", fmt.Errorf("%s not set", key)
			}
			return v, nil
		})
		if !ok {
			return nil
		}
		return &v
	}
	return Identity{SessionID: read("sessionId"), UserID: read("userId")}
}

type Options struct {
	OrgHosts          []string
	FrameProbeTimeout time.Duration
	// Sources defaults to canvas, WebGL and audio.
	Sources  []Source
	Fonts    *FontProbe
	Sessions SessionSource
	// Transport is used by Start. Nil disables sending.
	Transport Transport
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Agent runs collection cycles against one page. It owns the page's
// interaction window, which is the only state kept between cycles.
type Agent struct {
	window    browser.Window
	sources   []Source
	fonts     FontProbe
	frames    FrameBehaviorProbe
	scanner   IframeScanner
	orgHosts  utils.HostAllowlist
	sessions  SessionSource
	transport Transport
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time

	tracker   *InteractionTracker
	detach    func()
	startOnce sync.Once
	started   chan struct{}
}

// NewAgent attaches to w and starts tracking clicks. It fails with
// ErrNoWindow when w has no document and with ErrUnknownSource when a
// source's name is not a digest slot or repeats one.
func NewAgent(w browser.Window, opts Options) (*Agent, error) {
	if w == nil {
		return nil, ErrNoWindow
	}
	doc, err := w.Document()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoWindow, err)
	}

	if opts.Sources == nil {
		opts.Sources = DefaultSources()
	}
	if err := checkSources(opts.Sources); err != nil {
		return nil, err
	}
	if opts.Fonts == nil {
		fp := DefaultFontProbe()
		opts.Fonts = &fp
	}
	if opts.Sessions == nil {
		opts.Sessions = StorageSession{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	orgHosts := utils.NewHostAllowlist(opts.OrgHosts)
	a := &Agent{
		window:    w,
		sources:   opts.Sources,
		fonts:     *opts.Fonts,
		frames:    FrameBehaviorProbe{Timeout: opts.FrameProbeTimeout},
		scanner:   IframeScanner{OrgHosts: orgHosts},
		orgHosts:  orgHosts,
		sessions:  opts.Sessions,
		transport: opts.Transport,
		metrics:   opts.Metrics,
		logger:    opts.Logger.Named("agent"),
		now:       opts.Now,
		tracker:   NewInteractionTracker(),
		started:   make(chan struct{}),
	}
	a.detach = a.tracker.Attach(doc)
	return a, nil
}

// Start runs one collect-and-send cycle when the document is ready. Later
// calls do nothing. The returned channel closes once that cycle's send has
// been attempted.
func (a *Agent) Start(ctx context.Context) <-chan struct{} {
	a.startOnce.Do(func() {
		doc, err := a.window.Document()
		if err != nil {
			a.logger.Debug("no document, skipping automatic collection", zap.Error(err))
			close(a.started)
			return
		}
		doc.OnReady(func() {
			defer close(a.started)
			payload, err := a.Capture(ctx, a.sessions.Identity(a.window))
			if err != nil {
				a.logger.Debug("automatic collection skipped", zap.Error(err))
				return
			}
			if a.transport == nil {
				return
			}
			<-Dispatch(ctx, a.transport, payload, a.logger, a.metrics)
		})
	})
	return a.started
}

// Capture runs one full collection cycle and returns the payload without
// sending it.
func (a *Agent) Capture(ctx context.Context, id Identity) (RiskPayload, error) {
	if _, err := a.window.Document(); err != nil {
		a.metrics.Collections.WithLabelValues("skipped").Inc()
		return RiskPayload{}, fmt.Errorf("%w: %v", ErrNoWindow, err)
	}

	started := time.Now()
	a.logger.Debug("collection started")

	parts := PayloadParts{
		Environment: ProbeEnvironment(a.window),
		SessionID:   id.SessionID,
		UserID:      id.UserID,
	}
	parts.Digests = ReduceDigests(a.render(ctx))

	verdict := a.frames.Resolve(ctx, a.window)
	a.metrics.FrameResolutions.WithLabelValues(verdict.Trigger).Inc()
	parts.Heuristics = HeuristicFlags{
		Automation:       DetectAutomation(a.window),
		FunctionTampered: DetectFunctionTampering(a.window),
		IframeMismatch:   verdict.Mismatch,
		StorageWorks:     ProbeStorage(a.window),
		CSPRestricted:    ProbeContentPolicy(a.window),
	}

	parts.Iframes = a.scanner.Scan(a.window)
	a.metrics.SuspiciousFrames.Observe(float64(parts.Iframes.Suspicious))
	parts.Interaction = a.tracker.Summary()
	parts.Origin = CheckOrigins(a.window, a.orgHosts)
	parts.CapturedAt = a.now()

	payload := AssemblePayload(parts)
	a.metrics.Collections.WithLabelValues("ok").Inc()
	a.metrics.CollectionDuration.Observe(time.Since(started).Seconds())
	a.logger.Debug("collection finished",
		zap.Duration("took", time.Since(started)),
		zap.String("fingerprint_id", payload.Stage2.FingerprintID),
		zap.Int("suspicious_frames", payload.IframeSignals.Suspicious),
	)
	return payload, nil
}

// render runs the rendering sources and the font probe concurrently. Each
// result is complete before any digest is taken.
func (a *Agent) render(ctx context.Context) RawArtifacts {
	artifacts := make([]Artifact, len(a.sources))
	var fonts Artifact

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		g.Go(func() error {
			art, ok := src.Produce(gctx, a.window)
			if !ok {
				a.metrics.AbsentArtifacts.WithLabelValues(src.Name()).Inc()
				return nil
			}
			artifacts[i] = art
			return nil
		})
	}
	g.Go(func() error {
		if list, ok := a.fonts.Detect(a.window); ok {
			fonts = FontList(list)
		} else {
			a.metrics.AbsentArtifacts.WithLabelValues("fonts").Inc()
		}
		return nil
	})
	_ = g.Wait()

	raw := RawArtifacts{Fonts: fonts}
	for i, src := range a.sources {
		if artifacts[i] == nil {
			continue
		}
		switch src.Name() {
		case SlotCanvas:
			raw.Canvas = artifacts[i]
		case SlotWebGL:
			raw.WebGL = artifacts[i]
		case SlotAudio:
			raw.Audio = artifacts[i]
		}
	}
	return raw
}

func checkSources(sources []Source) error {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		name := src.Name()
		switch name {
		case SlotCanvas, SlotWebGL, SlotAudio:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: %q listed twice", ErrUnknownSource, name)
		}
		seen[name] = true
	}
	return nil
}

// Interaction exposes the page's click window.
func (a *Agent) Interaction() *InteractionTracker { return a.tracker }

// Close stops click tracking.
func (a *Agent) Close() {
	if a.detach != nil {
		a.detach()
	}
}
