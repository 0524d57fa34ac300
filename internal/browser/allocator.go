package browser

import (
	"context"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/tryxpath-cli/internal/config"
)

// AllocatorOptions builds the exec allocator options for a launched browser.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// splitArg turns "--name=value" or "--name" into a chromedp flag.
func splitArg(arg string) (string, interface{}) {
	name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "=")
	if !ok {
		return name, true
	}
	return name, value
}

// NewAllocator attaches to cfg.RemoteURL when set and launches a browser
// otherwise.
func NewAllocator(ctx context.Context, cfg config.BrowserConfig) (context.Context, context.CancelFunc) {
	if cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	}
	return chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
}
