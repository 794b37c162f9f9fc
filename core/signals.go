package core

// Payload sections. JSON names are the collection endpoint's wire contract.

type ScreenInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	ColorDepth int     `json:"colorDepth"`
	PixelRatio float64 `json:"pixelRatio"`
}

// RawSignalSet is stage 1: static environment attributes.
type RawSignalSet struct {
	UserAgent           string     `json:"userAgent"`
	Platform            string     `json:"platform"`
	Language            string     `json:"language"`
	Languages           []string   `json:"languages"`
	Webdriver           bool       `json:"webdriver"`
	HardwareConcurrency int        `json:"hardwareConcurrency"`
	DeviceMemory        *float64   `json:"deviceMemory"`
	CookieEnabled       bool       `json:"cookieEnabled"`
	DoNotTrack          *string    `json:"doNotTrack"`
	Timezone            string     `json:"timezone"`
	Screen              ScreenInfo `json:"screen"`
	Referrer            string     `json:"referrer"`
	Origin              string     `json:"origin"`
}

// FingerprintDigests is stage 2. A nil digest means the artifact could not
// be produced.
type FingerprintDigests struct {
	Canvas        *string `json:"canvasHash"`
	WebGL         *string `json:"webglHash"`
	Audio         *string `json:"audioHash"`
	Fonts         *string `json:"fontsHash"`
	FingerprintID string  `json:"fingerprintId"`
}

type AutomationSignals struct {
	Webdriver            bool `json:"webdriver"`
	PluginsLength        int  `json:"pluginsLength"`
	MimeTypesLength      int  `json:"mimeTypesLength"`
	HasChrome            bool `json:"hasChrome"`
	HasWebdriverScriptFn bool `json:"hasWebdriverScriptFn"`
}

// HeuristicFlags is stage 3.
type HeuristicFlags struct {
	Automation       AutomationSignals `json:"automation"`
	FunctionTampered bool              `json:"functionTampered"`
	IframeMismatch   bool              `json:"iframeMismatch"`
	StorageWorks     bool              `json:"storageWorks"`
	CSPRestricted    bool              `json:"cspRestricted"`
}

// IframeScan counts frames per threat predicate. Suspicious counts frames
// matching at least one predicate, each frame once.
type IframeScan struct {
	Total       int `json:"total"`
	Suspicious  int `json:"suspicious"`
	Hidden      int `json:"hidden"`
	Offscreen   int `json:"offscreen"`
	CrossOrigin int `json:"crossOrigin"`
	NotFromOrg  int `json:"notFromOrg"`
}

type InteractionSummary struct {
	ClickIntervalAvg *float64 `json:"clickIntervalAvg"`
	Samples          int      `json:"samples"`
}

type OriginSignals struct {
	PageOriginNotFromOrg bool `json:"pageOriginNotFromOrg"`
	ReferrerNotFromOrg   bool `json:"referrerNotFromOrg"`
}

// RiskPayload is the body posted to the collection endpoint.
type RiskPayload struct {
	Timestamp     int64              `json:"timestamp"`
	SessionID     *string            `json:"sessionId,omitempty"`
	UserID        *string            `json:"userId,omitempty"`
	Stage1        RawSignalSet       `json:"stage1"`
	Stage2        FingerprintDigests `json:"stage2"`
	Stage3        HeuristicFlags     `json:"stage3"`
	IframeSignals IframeScan         `json:"iframeSignals"`
	Interaction   InteractionSummary `json:"interaction"`
	Origin        OriginSignals      `json:"origin"`
}
