package main

import (
	"fmt"
	"io"
	"log"
	"os"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/joho/godotenv"

	"cfbypass"
)

var engineLog *log.Logger

const maxTransportRetries = 3

type moduleLogger struct {
	logger *log.Logger
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("      "+format, args...)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: cfget <url> [url ...]")
	}

	logFile := setupLogging()
	defer logFile.Close()

	_ = godotenv.Load()

	cfg := cfbypass.ConfigFromEnv()

	proxyManager := loadProxies()
	if proxyManager != nil {
		cfg.ProxyURL = proxyManager.Current()
		engineLog.Printf("Loaded %d proxies, starting with %s", proxyManager.Count(), proxyManager.CurrentDisplay())
	}

	client, err := cfbypass.NewClient(nil, cfg.ProxyURL)
	if err != nil {
		engineLog.Fatalf("Failed to build client: %v", err)
	}

	interceptor := cfbypass.Install(client, cfg, cfbypass.WithLogger(&cfbypass.PrefixLogger{
		Prefix: "bypass",
		Base:   &moduleLogger{logger: engineLog},
	}))

	// Unless suppressed, give the escalation chain a visible browser window
	// as its last resort so hard challenges can be clicked through by hand.
	if os.Getenv("CFBYPASS_NO_MANUAL") == "" {
		window := cfbypass.NewPlaywrightBrowser(cfbypass.BrowserOptions{
			Headless:  false,
			UserAgent: cfg.UserAgent,
			ProxyURL:  cfg.ProxyURL,
		})
		defer window.Close()
		extractor := cfbypass.NewCookieExtractor(window, client)
		interceptor.RegisterManualHandler(cfbypass.InteractiveHandler(window, extractor))
	}

	exitCode := 0
	for _, target := range os.Args[1:] {
		if err := fetch(interceptor, client, proxyManager, target, cfg.UserAgent); err != nil {
			engineLog.Printf("FAILED %s: %v", target, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func setupLogging() *os.File {
	logFile, err := os.OpenFile("cfget.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	engineLog = log.New(io.MultiWriter(os.Stderr, logFile), "", log.LstdFlags)
	return logFile
}

// loadProxies reads proxies.txt when present. Running without proxies is
// fine; running with a broken proxies.txt is not.
func loadProxies() *cfbypass.ProxyManager {
	if _, err := os.Stat("proxies.txt"); err != nil {
		return nil
	}
	proxyManager, err := cfbypass.NewProxyManager("proxies.txt")
	if err != nil {
		engineLog.Fatalf("Failed to load proxies: %v", err)
	}
	return proxyManager
}

func fetch(transport cfbypass.Transport, client tls_client.HttpClient, proxies *cfbypass.ProxyManager, target, userAgent string) error {
	var lastErr error

	for attempt := 0; attempt < maxTransportRetries; attempt++ {
		if attempt > 0 && proxies != nil {
			next := proxies.Rotate()
			if err := client.SetProxy(next); err != nil {
				return err
			}
			engineLog.Printf("Rotated to proxy %s", proxies.CurrentDisplay())
		}

		req, err := newPageRequest(target, userAgent)
		if err != nil {
			return err
		}

		resp, err := transport.Do(req)
		if err != nil {
			if cfbypass.IsRetryableError(err) {
				lastErr = err
				continue
			}
			return err
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		engineLog.Printf("%s -> %d (%d bytes)", target, resp.StatusCode, len(body))
		fmt.Println(string(body))
		return nil
	}

	return lastErr
}

func newPageRequest(target, userAgent string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	req.Header = http.Header{
		"accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
		"accept-language":           {"en-US,en;q=0.9"},
		"upgrade-insecure-requests": {"1"},
		"user-agent":                {userAgent},
		http.HeaderOrderKey: {
			"accept",
			"accept-language",
			"upgrade-insecure-requests",
			"user-agent",
		},
	}

	return req, nil
}
