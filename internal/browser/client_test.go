package browser

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestMatchName(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Sign Up", "Sign Up", true},
		{"  sign\n  up ", "Sign Up", true},
		{"Save and Continue", "save and", true},
		{"Nurses by Campus", "Campus", true},
		{"Sign In", "Sign Up", false},
		{"", "Search", false},
		{"anything", "", true},
		{"Height (cm)", "Height (cm)", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, MatchName(tt.text, tt.want), "MatchName(%q, %q)", tt.text, tt.want)
	}
}

func TestMatchNameProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[A-Za-z ()+]{0,24}`).Draw(t, "text")

		if !MatchName(text, text) {
			t.Fatalf("text does not match itself: %q", text)
		}
		if !MatchName(strings.ToUpper(text), strings.ToLower(text)) {
			t.Fatalf("match is case sensitive: %q", text)
		}
		padded := "  " + strings.ReplaceAll(text, " ", "\t ") + "\n"
		if !MatchName(padded, text) {
			t.Fatalf("match is whitespace sensitive: %q", text)
		}
		if !MatchName("prefix "+text+" suffix", text) {
			t.Fatalf("substring not accepted: %q", text)
		}
	})
}

func TestLocatorString(t *testing.T) {
	assert.Equal(t, `button "Sign Up"`, ByRole("button", "Sign Up").String())
	assert.Equal(t, "combobox", ByRole("combobox", "").String())
	assert.Equal(t, `label "Email"`, ByLabel("Email").String())
}

func TestNewLauncher(t *testing.T) {
	opts := DefaultOptions()

	l, err := NewLauncher(opts, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ChromeManager{}, l)
	assert.False(t, l.IsRunning())

	opts.Engine = EnginePlaywright
	l, err = NewLauncher(opts, nil)
	require.NoError(t, err)
	assert.IsType(t, &PlaywrightManager{}, l)

	opts.Engine = "lightpanda"
	_, err = NewLauncher(opts, nil)
	assert.Error(t, err)
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("playwright")
	require.NoError(t, err)
	assert.Equal(t, EnginePlaywright, e)

	_, err = ParseEngine("firefox")
	assert.ErrorContains(t, err, "unknown engine")
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewChromeManager(DefaultOptions(), zap.NewNop()).Stop())
	assert.NoError(t, NewPlaywrightManager(DefaultOptions(), zap.NewNop()).Stop())
}

func TestNewDriverRequiresStart(t *testing.T) {
	_, err := NewChromeManager(DefaultOptions(), zap.NewNop()).NewDriver(t.Context())
	assert.ErrorContains(t, err, "not running")
}

func TestExactLocator(t *testing.T) {
	male := ExactLabel("Male")
	assert.True(t, male.Matches(" Male "))
	assert.False(t, male.Matches("Female"))
	assert.False(t, male.Matches("male"))

	// A plain label locator would also hit "Female".
	assert.True(t, ByLabel("Male").Matches("Female"))
	assert.Equal(t, `exact label "Male"`, male.String())
}

func TestChromeBin(t *testing.T) {
	var asked []int
	orig := downloadChrome
	downloadChrome = func(_ context.Context, revision int) (string, error) {
		asked = append(asked, revision)
		if revision == 1 {
			return "", errors.New("404")
		}
		return "/cache/chromium-" + strconv.Itoa(revision) + "/chrome", nil
	}
	t.Cleanup(func() { downloadChrome = orig })

	bin, err := chromeBin(t.Context(), Options{ChromeBin: "/usr/bin/chromium", ChromeRevision: 1321438})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/chromium", bin)

	bin, err = chromeBin(t.Context(), Options{})
	require.NoError(t, err)
	assert.Empty(t, bin)

	bin, err = chromeBin(t.Context(), Options{ChromeRevision: 1321438})
	require.NoError(t, err)
	assert.Equal(t, "/cache/chromium-1321438/chrome", bin)

	_, err = chromeBin(t.Context(), Options{ChromeRevision: 1})
	assert.ErrorContains(t, err, "chrome revision 1")

	assert.Equal(t, []int{1321438, 1}, asked)
}

func TestStartFailsOnUnknownRevision(t *testing.T) {
	orig := downloadChrome
	downloadChrome = func(context.Context, int) (string, error) {
		return "", errors.New("not found")
	}
	t.Cleanup(func() { downloadChrome = orig })

	opts := DefaultOptions()
	opts.ChromeRevision = 42
	m := NewChromeManager(opts, zap.NewNop())
	assert.ErrorContains(t, m.Start(t.Context()), "chrome revision 42")
	assert.False(t, m.IsRunning())
}
