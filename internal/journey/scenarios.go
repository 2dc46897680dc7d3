package journey

import (
	"strings"

	"github.com/ahrdadan/clinicprobe/internal/browser"
	"github.com/ahrdadan/clinicprobe/internal/expect"
)

// Screenshot file names, in the order a full run writes them.
const (
	ShotCompleteProfile = "01_complete_profile_page.png"
	ShotPatientLanding  = "02_patient_landing_page.png"
	ShotDoctorView      = "03_doctor_view.png"
	ShotNurseView       = "04_nurse_view.png"
)

// Scenario is a named sequence of steps run as one persona.
type Scenario struct {
	Name    string
	Persona Persona
	Steps   []Step
}

// Plan holds everything the scenario catalogue is parameterised by.
type Plan struct {
	BaseURL     string
	Patient     Persona
	Doctor      Persona
	Nurse       Persona
	Profile     Profile
	ProbeRoutes bool
}

// DefaultPlan targets the local dev server with the seeded accounts.
func DefaultPlan() Plan {
	return Plan{
		BaseURL: "http://localhost:5173",
		Patient: DefaultPatient(),
		Doctor:  DefaultDoctor(),
		Nurse:   DefaultNurse(),
		Profile: DefaultProfile(),
	}
}

// Scenarios returns the catalogue in execution order.
func (p Plan) Scenarios() []Scenario {
	scenarios := []Scenario{
		p.PatientSignUp(),
		p.DoctorView(),
		p.NurseView(),
	}
	if p.ProbeRoutes {
		scenarios = append(scenarios, p.RouteProbes())
	}
	return scenarios
}

func (p Plan) url(path string) string {
	return strings.TrimRight(p.BaseURL, "/") + path
}

func button(name string) browser.Locator { return browser.ByRole("button", name) }
func link(name string) browser.Locator   { return browser.ByRole("link", name) }
func label(text string) browser.Locator  { return browser.ByLabel(text) }

func signIn(p Plan, who Persona) []Step {
	return []Step{
		Goto(p.url("/login")),
		Fill(label("Email"), who.Email),
		FillSecret(label("Password"), who.Password),
		Click(button("Sign In")),
		ExpectURL(expect.MustURLPattern(".*/dashboard")),
	}
}

// PatientSignUp registers a new patient, completes the profile and lands on
// the patient page. It fails on a second run against the same database.
func (p Plan) PatientSignUp() Scenario {
	pat, prof := p.Patient, p.Profile
	return Scenario{
		Name:    "patient-signup",
		Persona: pat,
		Steps: []Step{
			Goto(p.url("/login")),
			Click(button("Sign Up")),
			Fill(label("Full Name"), pat.Name),
			Fill(label("Email"), pat.Email),
			FillSecret(label("Password"), pat.Password),
			Click(button("Sign Up")),
			ExpectURL(expect.ExactURL(p.url("/complete-profile"))),
			Screenshot(ShotCompleteProfile),

			Fill(label("Height (cm)"), prof.Height),
			Fill(label("Blood Type"), prof.BloodType),
			Click(browser.Locator{Role: "combobox"}),
			// "Male" is a substring of "Female".
			Click(browser.ExactLabel(prof.Gender)),
			Fill(label("Address"), prof.Address),
			Fill(label("Campus"), prof.Campus),
			Fill(label("Department"), prof.Department),
			Click(button("Save and Continue")),
			ExpectURL(expect.ExactURL(p.url("/patient-landing"))),
			Screenshot(ShotPatientLanding),
			Click(button("Logout")),
		},
	}
}

// DoctorView checks the doctor's sidebar and appointment filters.
func (p Plan) DoctorView() Scenario {
	steps := signIn(p, p.Doctor)
	steps = append(steps,
		ExpectVisible(link("Nurses by Campus")),
		ExpectHidden(link("Search")),
		ExpectHidden(link("Prescriptions")),

		Click(link("Appointments")),
		ExpectURL(expect.MustURLPattern(".*/appointments")),
		ExpectVisible(button("Pending")),
		ExpectVisible(button("Completed")),
		ExpectHidden(button("Confirmed")),
		Screenshot(ShotDoctorView),
		Click(button("Logout")),
	)
	return Scenario{Name: "doctor-view", Persona: p.Doctor, Steps: steps}
}

// NurseView follows the nurse's Search link to the patients page. The nurse
// stays signed in afterwards.
func (p Plan) NurseView() Scenario {
	steps := signIn(p, p.Nurse)
	steps = append(steps,
		Click(link("Search")),
		ExpectURL(expect.MustURLPattern(".*/patients")),
		ExpectVisible(button("Add Patient")),
		Screenshot(ShotNurseView),
	)
	return Scenario{Name: "nurse-view", Persona: p.Nurse, Steps: steps}
}

// RouteProbes routes straight to pages outside each role and checks the
// redirect, then checks that a signed-out load is sent to the login page.
// It picks up from NurseView, so the nurse is still signed in.
//
// Signed-in checks use Visit: a full load restores the session only after
// the first render, so every gated page would bounce through /login.
func (p Plan) RouteProbes() Scenario {
	unauthorized := expect.MustURLPattern(".*/unauthorized")
	var steps []Step

	steps = append(steps,
		Visit(p.url("/nurses-by-campus")),
		ExpectURL(unauthorized),
		Visit(p.url("/dashboard")),
		Click(button("Logout")),
		Goto(p.url("/dashboard")),
		ExpectURL(expect.MustURLPattern(".*/login")),
	)

	steps = append(steps, signIn(p, p.Doctor)...)
	steps = append(steps,
		Visit(p.url("/patients")),
		ExpectURL(unauthorized),
		Visit(p.url("/nurses-by-campus")),
		ExpectURL(expect.ExactURL(p.url("/nurses-by-campus"))),
		Click(button("Logout")),
	)

	return Scenario{Name: "route-probes", Persona: p.Doctor, Steps: steps}
}
