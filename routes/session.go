package routes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"riskagent/browser"
	"riskagent/core"
	"riskagent/utils"
)

// Session engines
const (
	EngineEmulated = "emulated"
	EngineChrome   = "chrome"
)

type CreateSessionRequest struct {
	Profile   string `json:"profile"`
	Engine    string `json:"engine"`
	HTML      string `json:"html"`
	URL       string `json:"url"`
	Referrer  string `json:"referrer"`
	CSP       string `json:"csp"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	EgressIP  string `json:"egress_ip"`
	AutoSend  *bool  `json:"auto_send"`
}

// ClicksRequest replays clicks at fixed offsets, or walks a synthetic
// pointer path through Targets when no offsets are given.
type ClicksRequest struct {
	OffsetsMS []int64  `json:"offsets_ms"`
	Targets   [][2]int `json:"targets"`
	Seed      int64    `json:"seed"`
}

func (r ClicksRequest) offsets() []time.Duration {
	if len(r.OffsetsMS) == 0 && len(r.Targets) > 0 {
		var rng *rand.Rand
		if r.Seed != 0 {
			rng = rand.New(rand.NewSource(r.Seed))
		}
		return utils.ClickOffsets(utils.ClickPath(rng, [2]int{0, 0}, r.Targets))
	}
	out := make([]time.Duration, len(r.OffsetsMS))
	for i, ms := range r.OffsetsMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// session is one page under observation with its agent.
type session struct {
	ID        string
	Engine    string
	Profile   string
	CreatedAt time.Time

	window    browser.Window
	page      *browser.Page // nil for chrome sessions
	agent     *core.Agent
	transport core.Transport
	close     func()
}

func (s *session) Close() {
	s.agent.Close()
	s.close()
}

// Server holds the live sessions and everything a collection needs.
type Server struct {
	cfg      *utils.Config
	profiles *browser.ProfileSet
	geo      *utils.TimezoneResolver
	registry *prometheus.Registry
	metrics  *core.Metrics
	logger   *zap.Logger

	sessionPool sync.Map

	// NewClient builds the transport client for a browser family.
	NewClient func(family string) (tls_client.HttpClient, error)
	// BaseContext parents chrome sessions and background sends.
	BaseContext context.Context
}

func NewServer(cfg *utils.Config, profiles *browser.ProfileSet, geo *utils.TimezoneResolver, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:         cfg,
		profiles:    profiles,
		geo:         geo,
		registry:    registry,
		metrics:     core.NewMetrics(registry),
		logger:      logger.Named("routes"),
		BaseContext: context.Background(),
	}
	s.NewClient = func(family string) (tls_client.HttpClient, error) {
		return utils.NewTransportClient(cfg.Transport, family)
	}
	return s
}

// Register mounts every route on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/profiles", s.GetProfilesRoute)

	e.POST("/sessions", s.CreateSessionRoute)
	e.POST("/sessions/:id/clicks", s.ClicksRoute)
	e.POST("/sessions/:id/capture", s.CaptureRoute)
	e.POST("/sessions/:id/send", s.SendRoute)
	e.DELETE("/sessions/:id", s.DeleteSessionRoute)

	e.POST(s.sinkPath(), s.CollectRoute)
	e.GET("/metrics", s.MetricsRoute())
}

func (s *Server) GetProfilesRoute(c echo.Context) error {
	profiles := make(map[string]string)
	for _, name := range s.profiles.Names() {
		p, _ := s.profiles.Get(name)
		profiles[name] = p.Navigator.UserAgent
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"profiles": profiles,
	})
}

func (s *Server) CreateSessionRoute(c echo.Context) error {
	contentType := c.Request().Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusUnsupportedMediaType, map[string]interface{}{
			"success": false,
			"error":   "Unsupported Content-Type",
			"details": fmt.Sprintf("Expected 'Content-Type: application/json' but got '%s'", contentType),
		})
	}

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	sess, err := s.openSession(req)
	if err != nil {
		var reqErr requestError
		if errors.As(err, &reqErr) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": reqErr.Error()})
		}
		s.logger.Warn("failed to open session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "failed to create session"})
	}

	s.sessionPool.Store(sess.ID, sess)
	s.logger.Info("session opened",
		zap.String("session", sess.ID),
		zap.String("engine", sess.Engine),
		zap.String("profile", sess.Profile),
	)

	autoSend := s.cfg.Collector.AutoCollect
	if req.AutoSend != nil {
		autoSend = *req.AutoSend
	}
	if autoSend {
		sess.agent.Start(s.BaseContext)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "session_id": sess.ID})
}

// requestError is a client mistake, reported as 400.
type requestError string

func (e requestError) Error() string { return string(e) }

func (s *Server) openSession(req CreateSessionRequest) (*session, error) {
	engine := strings.ToLower(req.Engine)
	if engine == "" {
		engine = EngineEmulated
	}

	name := req.Profile
	if name == "" {
		name = s.cfg.Browser.DefaultProfile
	}

	sess := &session{ID: uuid.NewString(), Engine: engine, Profile: name, CreatedAt: time.Now()}
	family := "chrome"

	switch engine {
	case EngineEmulated:
		profile, ok := s.profiles.Get(name)
		if !ok {
			return nil, requestError("unknown profile")
		}
		family = profile.Family

		html := req.HTML
		if html == "" {
			html = `<!doctype html><html><head></head><body></body></html>`
		}
		opts := browser.PageOptions{
			URL:            req.URL,
			Referrer:       req.Referrer,
			CSPHeader:      req.CSP,
			FrameLoadDelay: s.cfg.Browser.FrameLoadDelay,
			Logger:         s.logger,
		}
		if req.EgressIP != "" {
			tz, err := s.geo.Timezone(req.EgressIP)
			if err != nil {
				s.logger.Debug("egress timezone unavailable", zap.String("ip", req.EgressIP), zap.Error(err))
			} else {
				opts.Timezone = tz
			}
		}

		page, err := browser.NewPage(profile, html, opts)
		if err != nil {
			return nil, fmt.Errorf("new page: %w", err)
		}
		sess.window, sess.page, sess.close = page, page, page.Close

	case EngineChrome:
		if req.URL == "" {
			return nil, requestError("chrome sessions need a url")
		}
		w, err := browser.NewChromeWindow(s.BaseContext, req.URL, browser.ChromeOptions{
			ExecPath: s.cfg.Browser.ChromePath,
			Headless: s.cfg.Browser.Headless,
			Logger:   s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("start chrome: %w", err)
		}
		sess.window, sess.close = w, w.Close
		sess.Profile = ""

	default:
		return nil, requestError("unknown engine")
	}

	if err := writeIdentity(sess.window, req.SessionID, req.UserID); err != nil {
		sess.close()
		return nil, fmt.Errorf("write identity: %w", err)
	}

	if s.cfg.Collector.Endpoint != "" {
		client, err := s.NewClient(family)
		if err != nil {
			sess.close()
			return nil, fmt.Errorf("transport client: %w", err)
		}
		t, err := core.NewHTTPTransport(client, s.cfg.Collector.Endpoint, sess.window)
		if err != nil {
			sess.close()
			return nil, err
		}
		sess.transport = t
	}

	agent, err := core.NewAgent(sess.window, core.Options{
		OrgHosts:          s.cfg.Collector.OrgHosts,
		FrameProbeTimeout: s.cfg.Collector.FrameProbeTimeout,
		Transport:         sess.transport,
		Metrics:           s.metrics,
		Logger:            s.logger.With(zap.String("session", sess.ID)),
	})
	if err != nil {
		sess.close()
		return nil, err
	}
	sess.agent = agent
	return sess, nil
}

// writeIdentity stores the caller's identifiers where the page's own code
// would keep them.
func writeIdentity(w browser.Window, sessionID, userID string) error {
	if sessionID == "" && userID == "" {
		return nil
	}
	st, err := w.Storage(browser.SessionStorage)
	if err != nil {
		return err
	}
	if sessionID != "" {
		if err := st.SetItem("sessionId", sessionID); err != nil {
			return err
		}
	}
	if userID != "" {
		if err := st.SetItem("userId", userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) lookup(id string) (*session, bool) {
	val, exists := s.sessionPool.Load(id)
	if !exists {
		return nil, false
	}
	return val.(*session), true
}

func invalidSession(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "invalid session_id"})
}

func (s *Server) ClicksRoute(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return invalidSession(c)
	}
	if sess.page == nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"success": false, "error": "clicks need an emulated session"})
	}

	var req ClicksRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	start := time.Now()
	for _, offset := range req.offsets() {
		sess.page.Click(start.Add(offset))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"interaction": sess.agent.Interaction().Summary(),
	})
}

func (s *Server) CaptureRoute(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return invalidSession(c)
	}

	payload, err := sess.agent.Capture(c.Request().Context(), core.StorageSession{}.Identity(sess.window))
	if err != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) SendRoute(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return invalidSession(c)
	}
	if sess.transport == nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"success": false, "error": "no collect endpoint configured"})
	}

	payload, err := sess.agent.Capture(c.Request().Context(), core.StorageSession{}.Identity(sess.window))
	if err != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"success": false, "error": err.Error()})
	}
	core.Dispatch(s.BaseContext, sess.transport, payload, s.logger.With(zap.String("session", sess.ID)), s.metrics)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"success":        true,
		"fingerprint_id": payload.Stage2.FingerprintID,
	})
}

func (s *Server) DeleteSessionRoute(c echo.Context) error {
	val, exists := s.sessionPool.LoadAndDelete(c.Param("id"))
	if !exists {
		return invalidSession(c)
	}
	val.(*session).Close()
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// Sweep closes sessions older than the configured TTL and reports how many
// went.
func (s *Server) Sweep(now time.Time) int {
	ttl := s.cfg.Server.SessionTTL
	if ttl <= 0 {
		return 0
	}
	n := 0
	s.sessionPool.Range(func(key, val any) bool {
		sess := val.(*session)
		if now.Sub(sess.CreatedAt) < ttl {
			return true
		}
		if _, loaded := s.sessionPool.LoadAndDelete(key); loaded {
			sess.Close()
			n++
		}
		return true
	})
	return n
}

// Close ends every session.
func (s *Server) Close() {
	s.sessionPool.Range(func(key, val any) bool {
		if _, loaded := s.sessionPool.LoadAndDelete(key); loaded {
			val.(*session).Close()
		}
		return true
	})
}
