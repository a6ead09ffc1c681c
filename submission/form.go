package submission

import (
	"errors"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Form é a inscrição recebida. As tags json nomeiam os campos também nas
// mensagens de validação.
type Form struct {
	FullName               string `json:"fullName" validate:"required,max=100"`
	RollNumber             string `json:"rollNumber" validate:"required,max=15,numeric"`
	ClassSection           string `json:"classSection" validate:"required,max=50"`
	Branch                 string `json:"branch" validate:"required,max=100"`
	Email                  string `json:"email" validate:"required,max=100,email"`
	YearOfStudy            string `json:"yearOfStudy" validate:"required,max=20,oneof='1st Year' '2nd Year' '3rd Year'"`
	TeamLevel              string `json:"teamLevel,omitempty" validate:"omitempty,max=50"`
	SelectedRole           string `json:"selectedRole" validate:"required,max=100"`
	MotivationAndGrowth    string `json:"motivationAndGrowth" validate:"required,max=2000"`
	ExpectationsFromCSI    string `json:"expectationsFromCSI" validate:"required,max=2000"`
	ExcitingActivityAndWhy string `json:"excitingActivityAndWhy" validate:"required,max=2000"`
	PriorExperience        string `json:"priorExperience" validate:"required,max=2000"`
	Skills                 string `json:"skills" validate:"required,max=2000"`
	PersonalProject        string `json:"personalProject,omitempty" validate:"omitempty,max=2000"`
	TimeCommitment         string `json:"timeCommitment" validate:"required,max=50,oneof='Less than 2 hours' '2-4 hours' '5-7 hours' '7+ hours'"`
	TeamWork               string `json:"teamWork" validate:"required,max=10,oneof=Yes No"`
	MentoringExperience    string `json:"mentoringExperience,omitempty" validate:"omitempty,max=2000"`
	ContributionPlan       string `json:"contributionPlan,omitempty" validate:"omitempty,max=2000"`
}

const yearRequiringTeamLevel = "3rd Year"

// ErrInvalidForm é retornado (embrulhado em *ValidationError) quando a inscrição é recusada.
var ErrInvalidForm = errors.New("invalid form data")

// ValidationError carrega a lista de problemas encontrados, na ordem dos campos.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrInvalidForm.Error()
	}
	return ErrInvalidForm.Error() + ": " + e.Details[0]
}

func (e *ValidationError) Unwrap() error { return ErrInvalidForm }

var (
	// Padrões claros de injeção. Apóstrofos e palavras soltas como "select" ou "and"
	// aparecem em nomes e textos livres e não são recusados.
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
		regexp.MustCompile(`(?i)\b(insert\s+into|delete\s+from|drop\s+(table|database)|alter\s+table|truncate\s+table)\b`),
		regexp.MustCompile(`(?i)\bexec(ute)?\s*\(`),
		regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|alter|exec)\b`),
		regexp.MustCompile(`(--|/\*|\*/)`),
		regexp.MustCompile(`(?i)'\s*(or|and)\s+'?[^']*'?\s*=`),
		regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*script`),
		regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`),
		regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
		regexp.MustCompile(`(?i)<\s*(iframe|object|embed|form)\b`),
		regexp.MustCompile(`(?i)data:text/html`),
		regexp.MustCompile(`(?i)\b(eval|expression)\s*\(`),
		regexp.MustCompile(`(?i)document\.(write|writeln|cookie)`),
		regexp.MustCompile(`(?i)window\.(location|open)`),
	}
)

// DetectSQLInjection informa se o valor tem cara de injeção de SQL.
func DetectSQLInjection(s string) bool {
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// DetectXSS informa se o valor tenta injetar script ou HTML ativo.
func DetectXSS(s string) bool {
	for _, re := range xssPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Validator valida e higieniza inscrições.
type Validator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate:  v,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Check valida o formulário (já com espaços aparados) e devolve uma cópia
// higienizada, pronta para ser repassada. Erros são *ValidationError.
func (v *Validator) Check(f Form) (Form, error) {
	f = f.trimmed()

	var details []string
	bad := make(map[string]bool)

	if err := v.validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Form{}, err
		}
		for _, fe := range fieldErrs {
			bad[fe.Field()] = true
			details = append(details, fieldMessage(fe))
		}
	}

	for _, fv := range f.fields() {
		if *fv.value == "" || bad[fv.name] {
			continue
		}
		if DetectSQLInjection(*fv.value) || DetectXSS(*fv.value) {
			details = append(details, fv.name+" contains potentially malicious content")
		}
	}

	if f.YearOfStudy == yearRequiringTeamLevel && f.TeamLevel == "" {
		details = append(details, "Team level is required for 3rd year students")
	}

	if len(details) > 0 {
		return Form{}, &ValidationError{Details: details}
	}

	for _, fv := range f.fields() {
		*fv.value = v.sanitizer.Sanitize(*fv.value)
	}
	return f, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " exceeds maximum length of " + fe.Param()
	case "numeric":
		return fe.Field() + ": Invalid number format"
	case "email":
		return fe.Field() + ": Invalid email format"
	case "oneof":
		switch fe.Field() {
		case "yearOfStudy":
			return "Invalid year of study"
		case "timeCommitment":
			return "Invalid time commitment"
		case "teamWork":
			return "Invalid team work preference"
		}
	}
	return fe.Field() + " is invalid"
}

type fieldRef struct {
	name  string
	value *string
}

// fields lista os campos na ordem do formulário.
func (f *Form) fields() []fieldRef {
	return []fieldRef{
		{"fullName", &f.FullName},
		{"rollNumber", &f.RollNumber},
		{"classSection", &f.ClassSection},
		{"branch", &f.Branch},
		{"email", &f.Email},
		{"yearOfStudy", &f.YearOfStudy},
		{"teamLevel", &f.TeamLevel},
		{"selectedRole", &f.SelectedRole},
		{"motivationAndGrowth", &f.MotivationAndGrowth},
		{"expectationsFromCSI", &f.ExpectationsFromCSI},
		{"excitingActivityAndWhy", &f.ExcitingActivityAndWhy},
		{"priorExperience", &f.PriorExperience},
		{"skills", &f.Skills},
		{"personalProject", &f.PersonalProject},
		{"timeCommitment", &f.TimeCommitment},
		{"teamWork", &f.TeamWork},
		{"mentoringExperience", &f.MentoringExperience},
		{"contributionPlan", &f.ContributionPlan},
	}
}

func (f Form) trimmed() Form {
	for _, fv := range f.fields() {
		*fv.value = strings.TrimSpace(*fv.value)
	}
	return f
}

// FormFromValues monta o formulário a partir de valores já achatados
// (JSON, multipart ou urlencoded). Chaves desconhecidas são ignoradas.
func FormFromValues(values map[string]string) Form {
	var f Form
	for _, fv := range f.fields() {
		*fv.value = values[fv.name]
	}
	return f
}

// Values devolve só os campos preenchidos.
func (f Form) Values() url.Values {
	out := make(url.Values)
	for _, fv := range f.fields() {
		if *fv.value != "" {
			out.Set(fv.name, *fv.value)
		}
	}
	return out
}
