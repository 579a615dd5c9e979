package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// Session owns one Playwright driver, one browser, one context and one page.
// It is not safe for concurrent navigation.
type Session struct {
	pw          *playwright.Playwright
	browser     playwright.Browser
	context     playwright.BrowserContext
	page        playwright.Page
	fingerprint Fingerprint
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

type Options struct {
	Engine         Engine
	Headless       bool
	Stealth        bool
	Timeout        time.Duration
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	Fingerprinter  *Fingerprinter
	Logger         *slog.Logger
}

func DefaultOptions() *Options {
	return &Options{
		Engine:         EngineChromium,
		Headless:       true,
		Stealth:        true,
		Timeout:        30 * time.Second,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
		},
	}
}

// Launch starts a browser with a randomized fingerprint and returns the session.
// The caller owns the session and must Close it.
func Launch(ctx context.Context, opts *Options) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "browser")

	fingerprinter := opts.Fingerprinter
	if fingerprinter == nil {
		fingerprinter = NewFingerprinter(NewRand(0))
	}
	fp := fingerprinter.Random()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browserType, err := selectEngine(pw, opts.Engine)
	if err != nil {
		pw.Stop()
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Engine == "" || opts.Engine == EngineChromium {
		launchOpts.Args = chromiumArgs(opts.Stealth)
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(fp.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Permissions:       []string{"geolocation"},
		DeviceScaleFactor: playwright.Float(1),
		HasTouch:          playwright.Bool(false),
		Viewport: &playwright.Size{
			Width:  fp.Viewport.Width,
			Height: fp.Viewport.Height,
		},
		ExtraHttpHeaders: headers,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if opts.Stealth {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
			bctx.Close()
			browser.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to add stealth script: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().Timeout
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	logger.Info("browser session started",
		"engine", engineName(opts.Engine),
		"headless", opts.Headless,
		"stealth", opts.Stealth,
		"user_agent", fp.UserAgent,
		"viewport", fmt.Sprintf("%dx%d", fp.Viewport.Width, fp.Viewport.Height))

	return &Session{
		pw:          pw,
		browser:     browser,
		context:     bctx,
		page:        page,
		fingerprint: fp,
		logger:      logger,
	}, nil
}

func selectEngine(pw *playwright.Playwright, engine Engine) (playwright.BrowserType, error) {
	switch engine {
	case "", EngineChromium:
		return pw.Chromium, nil
	case EngineFirefox:
		return pw.Firefox, nil
	case EngineWebKit:
		return pw.WebKit, nil
	}
	return nil, fmt.Errorf("unsupported browser engine: %q", engine)
}

func engineName(engine Engine) string {
	if engine == "" {
		return string(EngineChromium)
	}
	return string(engine)
}

// Page returns the session's single page.
func (s *Session) Page() Page {
	return &playwrightPage{page: s.page}
}

func (s *Session) Fingerprint() Fingerprint {
	return s.fingerprint
}

// Close releases the page, context, browser and driver in that order. Every
// step runs even if an earlier one fails. Calling Close again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
		s.page = nil
	}

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
		s.context = nil
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		s.browser = nil
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		s.pw = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}

	s.logger.Info("browser session closed")
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	if p.page == nil {
		return 0, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return 0, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *playwrightPage) FindFirst(selector string) (Element, error) {
	if p.page == nil {
		return nil, ErrSessionClosed
	}
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count %q: %w", selector, err)
	}
	if count == 0 {
		return nil, nil
	}
	return &locatorElement{loc: loc}, nil
}

func (p *playwrightPage) CurrentURL() string {
	if p.page == nil {
		return ""
	}
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	if p.page == nil {
		return "", ErrSessionClosed
	}
	return p.page.Content()
}

func (p *playwrightPage) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	if p.page == nil {
		return nil, ErrSessionClosed
	}
	return p.page.Evaluate(expression, arg...)
}

func (p *playwrightPage) WaitForNetworkIdle(timeout time.Duration) bool {
	if p.page == nil {
		return false
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err == nil
}

type locatorElement struct {
	loc playwright.Locator
}

func (e *locatorElement) Text() (string, error) {
	return e.loc.TextContent()
}
