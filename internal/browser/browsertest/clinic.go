package browsertest

import "strings"

// Clinic credentials seeded into the fake application.
var clinicAccounts = map[string]struct {
	password string
	role     string
}{
	"doctor@clinic.edu":  {"doctor123", "doctor"},
	"nurse@clinic.edu":   {"nurse123", "nurse"},
	"student@clinic.edu": {"student123", "patient"},
}

var clinicAccess = map[string][]string{
	"/dashboard":        {"nurse", "doctor"},
	"/patients":         {"nurse"},
	"/appointments":     {"nurse", "doctor", "patient"},
	"/prescriptions":    {"nurse"},
	"/nurses-by-campus": {"doctor"},
	"/complete-profile": {"patient"},
	"/patient-landing":  {"patient"},
}

// NewClinic returns a fake page that behaves like the HSMS web UI: sign-up and
// sign-in on /login, role-gated routes, and per-role navigation and filters.
func NewClinic(origin string) *Page {
	p := NewPage(origin)
	p.Route = clinicRoute
	p.Load = clinicLoad

	p.Handle("/login", clinicLogin)
	p.Handle("/unauthorized", func(p *Page) []Element { return nil })
	p.Handle("/dashboard", withLayout(func(p *Page) []Element { return nil }))
	p.Handle("/complete-profile", withLayout(clinicCompleteProfile))
	p.Handle("/patient-landing", withLayout(func(p *Page) []Element {
		return []Element{{Role: "link", Name: "Book Appointment", OnClick: navigateTo("/appointments")}}
	}))
	p.Handle("/appointments", withLayout(clinicAppointments))
	p.Handle("/patients", withLayout(func(p *Page) []Element {
		return []Element{{Role: "button", Name: "Add Patient"}}
	}))
	p.Handle("/nurses-by-campus", withLayout(func(p *Page) []Element { return nil }))
	p.Handle("/prescriptions", withLayout(func(p *Page) []Element { return nil }))
	return p
}

// Register marks an email as already taken, as a previous run would have.
func Register(p *Page, email string) {
	p.Set("registered:"+email, "1")
}

func clinicRoute(p *Page, path string) string {
	return routeFor(p.state["user"], path)
}

// clinicLoad is a full page load. The auth context renders first with no
// user and restores the saved one afterwards, so a gated route bounces to
// /login, which then sends the restored user to their home page.
func clinicLoad(p *Page, path string) string {
	path = routeFor("", path)
	user := p.state["user"]
	if path != "/login" || user == "" {
		return path
	}
	switch {
	case user != "patient":
		return "/dashboard"
	case p.state["profile-complete"] == "":
		return "/complete-profile"
	default:
		return "/patient-landing"
	}
}

func routeFor(user, path string) string {
	roles, gated := clinicAccess[path]
	if !gated {
		return path
	}
	if user == "" {
		return "/login"
	}
	for _, r := range roles {
		if r == user {
			return path
		}
	}
	if user == "patient" {
		return "/patient-landing"
	}
	return "/unauthorized"
}

func navigateTo(path string) func(p *Page) {
	return func(p *Page) { p.Navigate(path) }
}

func withLayout(content Screen) Screen {
	return func(p *Page) []Element {
		els := sidebar(p.Get("user"))
		els = append(els, Element{Role: "button", Name: "Logout", OnClick: func(p *Page) {
			p.Set("user", "")
			p.Set("mode", "")
			p.ClearValues()
			p.Navigate("/login")
		}})
		return append(els, content(p)...)
	}
}

func sidebar(role string) []Element {
	var els []Element
	if role == "nurse" || role == "doctor" {
		els = append(els, Element{Role: "link", Name: "Dashboard", OnClick: navigateTo("/dashboard")})
	}
	els = append(els, Element{Role: "link", Name: "Appointments", OnClick: navigateTo("/appointments")})
	switch role {
	case "nurse":
		els = append(els,
			Element{Role: "link", Name: "Search", OnClick: navigateTo("/patients")},
			Element{Role: "link", Name: "Prescriptions", OnClick: navigateTo("/prescriptions")},
		)
	case "doctor":
		els = append(els, Element{Role: "link", Name: "Nurses by Campus", OnClick: navigateTo("/nurses-by-campus")})
	}
	return els
}

func clinicLogin(p *Page) []Element {
	if p.Get("mode") == "signup" {
		return []Element{
			{Role: "textbox", Label: "Full Name"},
			{Role: "textbox", Label: "Email"},
			{Role: "textbox", Label: "Password"},
			{Role: "button", Name: "Sign Up", OnClick: clinicSignUp},
			{Role: "button", Name: "Sign In", OnClick: func(p *Page) { p.Set("mode", "") }},
		}
	}
	return []Element{
		{Role: "textbox", Label: "Email"},
		{Role: "textbox", Label: "Password"},
		{Role: "button", Name: "Sign In", OnClick: clinicSignIn},
		{Role: "button", Name: "Sign Up", OnClick: func(p *Page) { p.Set("mode", "signup") }},
	}
}

func clinicSignUp(p *Page) {
	email := strings.TrimSpace(p.Value("Email"))
	if p.Value("Full Name") == "" || email == "" || p.Value("Password") == "" {
		return
	}
	if p.Get("registered:"+email) != "" {
		return
	}
	Register(p, email)
	p.Set("user", "patient")
	p.ClearValues()
	p.Navigate("/complete-profile")
}

func clinicSignIn(p *Page) {
	acct, ok := clinicAccounts[p.Value("Email")]
	if !ok || acct.password != p.Value("Password") {
		return
	}
	p.Set("user", acct.role)
	p.ClearValues()
	if acct.role == "patient" {
		p.Navigate("/patient-landing")
		return
	}
	p.Navigate("/dashboard")
}

func clinicCompleteProfile(p *Page) []Element {
	els := []Element{
		{Role: "textbox", Label: "Height (cm)"},
		{Role: "textbox", Label: "Blood Type"},
		{Role: "combobox", Name: "Select gender", OnClick: func(p *Page) { p.Set("gender-open", "1") }},
		{Role: "textbox", Label: "Address"},
		{Role: "textbox", Label: "Campus"},
		{Role: "textbox", Label: "Department"},
		{Role: "button", Name: "Save and Continue", OnClick: clinicSaveProfile},
	}
	if p.Get("gender-open") != "" {
		for _, g := range []string{"Male", "Female", "Other"} {
			g := g
			els = append(els, Element{Role: "option", Name: g, Label: g, OnClick: func(p *Page) {
				p.Set("gender", g)
				p.Set("gender-open", "")
			}})
		}
	}
	return els
}

func clinicSaveProfile(p *Page) {
	for _, label := range []string{"Height (cm)", "Blood Type", "Address", "Campus", "Department"} {
		if p.Value(label) == "" {
			return
		}
	}
	if p.Get("gender") == "" {
		return
	}
	p.Set("profile-complete", "1")
	p.Navigate("/patient-landing")
}

func clinicAppointments(p *Page) []Element {
	var filters []string
	switch p.Get("user") {
	case "doctor":
		filters = []string{"Pending", "Completed"}
	case "nurse":
		filters = []string{"Pending", "Confirmed", "Completed"}
	default:
		filters = []string{"All"}
	}
	els := make([]Element, 0, len(filters))
	for _, f := range filters {
		els = append(els, Element{Role: "button", Name: f})
	}
	return els
}
