package journey

// Role is the clinic role a persona signs in with.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
)

// Persona is a set of credentials used by one scenario.
type Persona struct {
	Role     Role   `mapstructure:"-" yaml:"role"`
	Name     string `mapstructure:"name" yaml:"name,omitempty"`
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"-"`
}

// Profile is what the patient enters on the complete-profile form.
type Profile struct {
	Height     string `mapstructure:"height" yaml:"height"`
	BloodType  string `mapstructure:"blood_type" yaml:"blood_type"`
	Gender     string `mapstructure:"gender" yaml:"gender"`
	Address    string `mapstructure:"address" yaml:"address"`
	Campus     string `mapstructure:"campus" yaml:"campus"`
	Department string `mapstructure:"department" yaml:"department"`
}

func DefaultPatient() Persona {
	return Persona{
		Role:     RolePatient,
		Name:     "Test Patient",
		Email:    "test.patient@clinic.edu",
		Password: "password123",
	}
}

func DefaultDoctor() Persona {
	return Persona{Role: RoleDoctor, Email: "doctor@clinic.edu", Password: "doctor123"}
}

func DefaultNurse() Persona {
	return Persona{Role: RoleNurse, Email: "nurse@clinic.edu", Password: "nurse123"}
}

func DefaultProfile() Profile {
	return Profile{
		Height:     "170",
		BloodType:  "A+",
		Gender:     "Male",
		Address:    "123 Test St",
		Campus:     "Test Campus",
		Department: "Testing",
	}
}
