package browser

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/playwright-community/playwright-go"
)

// InstallChrome downloads a Chromium build for rod and returns its path.
// A zero revision uses rod's pinned default.
func InstallChrome(ctx context.Context, revision int, withDeps bool) (string, error) {
	if withDeps {
		if err := InstallChromeDependencies(ctx); err != nil {
			return "", err
		}
	}

	downloader := launcher.NewBrowser()
	downloader.Context = ctx
	if revision > 0 {
		downloader.Revision = revision
	}

	path, err := downloader.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download chrome: %w", err)
	}

	return path, nil
}

// InstallPlaywright installs the playwright driver and its Chromium build.
func InstallPlaywright(withDeps bool) error {
	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	}); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	if withDeps {
		return InstallChromeDependencies(context.Background())
	}
	return nil
}

// packageManager describes how to install Chromium's shared libraries with one
// distribution tool.
type packageManager struct {
	bin      string
	refresh  []string
	install  []string
	packages []string
}

var packageManagers = []packageManager{
	{
		bin:     "apt-get",
		refresh: []string{"update"},
		install: []string{"install", "-y", "--no-install-recommends"},
		packages: []string{
			"ca-certificates", "fonts-liberation", "libasound2", "libatk-bridge2.0-0",
			"libatk1.0-0", "libcups2", "libdbus-1-3", "libdrm2", "libgbm1", "libgtk-3-0",
			"libnspr4", "libnss3", "libx11-xcb1", "libxcomposite1", "libxdamage1",
			"libxfixes3", "libxrandr2", "libxshmfence1", "libxss1", "libxtst6",
			"libpango-1.0-0", "libpangocairo-1.0-0", "libxkbcommon0",
		},
	},
	{
		bin:     "dnf",
		install: []string{"install", "-y"},
		packages: []string{
			"alsa-lib", "atk", "cups-libs", "gtk3", "libX11", "libXcomposite",
			"libXdamage", "libXrandr", "libXfixes", "libxcb", "libxkbcommon",
			"libxshmfence", "nss", "nspr", "pango", "mesa-libgbm", "libdrm",
		},
	},
	{
		bin:     "apk",
		install: []string{"add", "--no-cache"},
		packages: []string{
			"ca-certificates", "freetype", "harfbuzz", "nss", "ttf-freefont",
			"alsa-lib", "at-spi2-atk", "cups-libs", "libxcomposite", "libxdamage",
			"libxrandr", "libxkbcommon", "libdrm", "mesa-gbm", "gtk+3.0", "pango",
		},
	},
}

// InstallChromeDependencies installs OS packages required by Chromium using
// the first package manager found on PATH. It is a no-op off Linux.
func InstallChromeDependencies(ctx context.Context) error {
	if runtime.GOOS != "linux" {
		return nil
	}

	for _, pm := range packageManagers {
		path, err := exec.LookPath(pm.bin)
		if err != nil {
			continue
		}
		if len(pm.refresh) > 0 {
			if err := runCommand(ctx, path, pm.refresh...); err != nil {
				return err
			}
		}
		args := append(append([]string{}, pm.install...), pm.packages...)
		return runCommand(ctx, path, args...)
	}

	return fmt.Errorf("no supported package manager found for Chrome dependencies")
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %w\n%s", name, args, err, out.String())
	}
	return nil
}
