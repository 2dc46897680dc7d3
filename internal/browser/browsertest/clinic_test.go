package browsertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/clinicprobe/internal/browser"
)

const origin = "http://localhost:5173"

func signInAs(t *testing.T, p *Page, email, password string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.Goto(ctx, origin+"/login"))
	require.NoError(t, p.Fill(ctx, browser.ByLabel("Email"), email))
	require.NoError(t, p.Fill(ctx, browser.ByLabel("Password"), password))
	require.NoError(t, p.Click(ctx, browser.ByRole("button", "Sign In")))
}

func currentURL(t *testing.T, p *Page) string {
	t.Helper()
	u, err := p.URL(context.Background())
	require.NoError(t, err)
	return u
}

func TestReloadSignedOutGoesToLogin(t *testing.T) {
	p := NewClinic(origin)
	require.NoError(t, p.Goto(context.Background(), origin+"/dashboard"))
	assert.Equal(t, origin+"/login", currentURL(t, p))
}

func TestReloadSignedInLandsOnHome(t *testing.T) {
	p := NewClinic(origin)
	signInAs(t, p, "nurse@clinic.edu", "nurse123")
	require.Equal(t, origin+"/dashboard", currentURL(t, p))

	// A gated page, allowed or not, renders before the session is restored.
	for _, path := range []string{"/nurses-by-campus", "/patients", "/login"} {
		require.NoError(t, p.Goto(context.Background(), origin+path))
		assert.Equal(t, origin+"/dashboard", currentURL(t, p), path)
	}
}

func TestVisitKeepsSession(t *testing.T) {
	p := NewClinic(origin)
	signInAs(t, p, "doctor@clinic.edu", "doctor123")
	ctx := context.Background()

	require.NoError(t, p.Visit(ctx, origin+"/nurses-by-campus"))
	assert.Equal(t, origin+"/nurses-by-campus", currentURL(t, p))

	require.NoError(t, p.Visit(ctx, origin+"/patients"))
	assert.Equal(t, origin+"/unauthorized", currentURL(t, p))
}

func TestVisitNeedsLoadedApp(t *testing.T) {
	p := NewClinic(origin)
	assert.Error(t, p.Visit(context.Background(), origin+"/dashboard"))

	require.NoError(t, p.Goto(context.Background(), origin+"/login"))
	assert.Error(t, p.Visit(context.Background(), "http://elsewhere.test/dashboard"))
}

func TestReloadPatientWithIncompleteProfile(t *testing.T) {
	p := NewClinic(origin)
	p.Set("user", "patient")

	require.NoError(t, p.Goto(context.Background(), origin+"/patient-landing"))
	assert.Equal(t, origin+"/complete-profile", currentURL(t, p))

	p.Set("profile-complete", "1")
	require.NoError(t, p.Goto(context.Background(), origin+"/patient-landing"))
	assert.Equal(t, origin+"/patient-landing", currentURL(t, p))
}
