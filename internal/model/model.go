// Package model содержит доменные сущности системы анкет студенческого опыта.
package model

import "time"

// Status описывает статус анкеты пользователя.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusSubmitted  Status = "SUBMITTED"
)

// StepType идентифицирует шаг мастера заполнения анкеты.
type StepType string

const (
	StepBasicInfo         StepType = "basic-info"
	StepCourseMatching    StepType = "course-matching"
	StepAccommodation     StepType = "accommodation"
	StepLivingExpenses    StepType = "living-expenses"
	StepExperienceSharing StepType = "experience-sharing"
)

// Steps перечисляет шаги мастера в порядке прохождения.
var Steps = []StepType{
	StepBasicInfo,
	StepCourseMatching,
	StepAccommodation,
	StepLivingExpenses,
	StepExperienceSharing,
}

// StepTitles содержит человекочитаемые названия шагов.
var StepTitles = map[StepType]string{
	StepBasicInfo:         "Basic Information",
	StepCourseMatching:    "Course Matching",
	StepAccommodation:     "Accommodation",
	StepLivingExpenses:    "Living Expenses",
	StepExperienceSharing: "Experience Sharing",
}

// Section представляет один независимый раздел анкеты в свободной форме.
type Section map[string]any

// SectionName идентифицирует раздел анкеты.
type SectionName string

const (
	SectionBasicInfo      SectionName = "basic_info"
	SectionCourses        SectionName = "courses"
	SectionAccommodation  SectionName = "accommodation"
	SectionLivingExpenses SectionName = "living_expenses"
	SectionExperience     SectionName = "experience"
)

// stepSections сопоставляет шаг мастера разделу анкеты, который он редактирует.
var stepSections = map[StepType]SectionName{
	StepBasicInfo:         SectionBasicInfo,
	StepCourseMatching:    SectionCourses,
	StepAccommodation:     SectionAccommodation,
	StepLivingExpenses:    SectionLivingExpenses,
	StepExperienceSharing: SectionExperience,
}

// SectionForStep возвращает раздел анкеты, редактируемый на указанном шаге.
func SectionForStep(step StepType) (SectionName, bool) {
	s, ok := stepSections[step]
	return s, ok
}

// StepForSection возвращает шаг мастера, которому принадлежит раздел.
func StepForSection(section SectionName) (StepType, bool) {
	for step, s := range stepSections {
		if s == section {
			return step, true
		}
	}
	return "", false
}

// ExperienceRecord — единственная анкета пользователя, агрегирующая все разделы
// и прогресс прохождения мастера.
type ExperienceRecord struct {
	ID             string     `json:"id"`
	UserID         int64      `json:"user_id"`
	Status         Status     `json:"status"`
	CurrentStep    int        `json:"current_step"`
	CompletedSteps []string   `json:"completed_steps"`
	BasicInfo      Section    `json:"basic_info"`
	Courses        Section    `json:"courses"`
	Accommodation  Section    `json:"accommodation"`
	LivingExpenses Section    `json:"living_expenses"`
	Experience     Section    `json:"experience"`
	LastSavedAt    *time.Time `json:"last_saved_at,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewDraft возвращает пустую анкету в статусе DRAFT для указанного пользователя.
func NewDraft(userID int64) *ExperienceRecord {
	return &ExperienceRecord{
		UserID:         userID,
		Status:         StatusDraft,
		CurrentStep:    1,
		CompletedSteps: []string{},
		BasicInfo:      Section{},
		Courses:        Section{},
		Accommodation:  Section{},
		LivingExpenses: Section{},
		Experience:     Section{},
	}
}

// Patch описывает частичное обновление анкеты. Разделы обновляются целиком
// и независимо: отсутствующий (nil) раздел не затрагивается.
type Patch struct {
	CurrentStep    *int     `json:"current_step,omitempty"`
	CompletedSteps []string `json:"completed_steps,omitempty"`
	BasicInfo      Section  `json:"basic_info,omitempty"`
	Courses        Section  `json:"courses,omitempty"`
	Accommodation  Section  `json:"accommodation,omitempty"`
	LivingExpenses Section  `json:"living_expenses,omitempty"`
	Experience     Section  `json:"experience,omitempty"`
}

// Sections возвращает разделы, присутствующие в патче.
func (p Patch) Sections() map[SectionName]Section {
	res := make(map[SectionName]Section)
	if p.BasicInfo != nil {
		res[SectionBasicInfo] = p.BasicInfo
	}
	if p.Courses != nil {
		res[SectionCourses] = p.Courses
	}
	if p.Accommodation != nil {
		res[SectionAccommodation] = p.Accommodation
	}
	if p.LivingExpenses != nil {
		res[SectionLivingExpenses] = p.LivingExpenses
	}
	if p.Experience != nil {
		res[SectionExperience] = p.Experience
	}
	return res
}

// IsEmpty сообщает, что патч не несёт никаких изменений.
func (p Patch) IsEmpty() bool {
	return p.CurrentStep == nil && len(p.CompletedSteps) == 0 && len(p.Sections()) == 0
}

// Apply накладывает патч на анкету. Разделы заменяются целиком,
// completed_steps объединяются как множество и никогда не убывают.
func (r *ExperienceRecord) Apply(p Patch) {
	if p.CurrentStep != nil {
		r.CurrentStep = *p.CurrentStep
	}
	r.CompletedSteps = MergeSteps(r.CompletedSteps, p.CompletedSteps)
	for name, section := range p.Sections() {
		r.SetSection(name, section)
	}
}

// SetSection заменяет указанный раздел анкеты целиком.
func (r *ExperienceRecord) SetSection(name SectionName, section Section) {
	switch name {
	case SectionBasicInfo:
		r.BasicInfo = section
	case SectionCourses:
		r.Courses = section
	case SectionAccommodation:
		r.Accommodation = section
	case SectionLivingExpenses:
		r.LivingExpenses = section
	case SectionExperience:
		r.Experience = section
	}
}

// GetSection возвращает раздел анкеты по имени.
func (r *ExperienceRecord) GetSection(name SectionName) Section {
	switch name {
	case SectionBasicInfo:
		return r.BasicInfo
	case SectionCourses:
		return r.Courses
	case SectionAccommodation:
		return r.Accommodation
	case SectionLivingExpenses:
		return r.LivingExpenses
	case SectionExperience:
		return r.Experience
	}
	return nil
}

// FullPatch собирает патч из всех текущих разделов анкеты. Используется при
// финальной отправке, когда серверу передаётся полное содержимое.
func (r *ExperienceRecord) FullPatch() Patch {
	return Patch{
		CompletedSteps: append([]string(nil), r.CompletedSteps...),
		BasicInfo:      r.BasicInfo,
		Courses:        r.Courses,
		Accommodation:  r.Accommodation,
		LivingExpenses: r.LivingExpenses,
		Experience:     r.Experience,
	}
}

// HasCompleted сообщает, отмечен ли шаг как завершённый.
func (r *ExperienceRecord) HasCompleted(step StepType) bool {
	for _, s := range r.CompletedSteps {
		if s == string(step) {
			return true
		}
	}
	return false
}

// ProgressStatus вычисляет статус анкеты после применения изменений.
// Переход в SUBMITTED односторонний и выполняется только при явной отправке.
func ProgressStatus(r *ExperienceRecord, submit bool) Status {
	if r.Status == StatusSubmitted || submit {
		return StatusSubmitted
	}
	completed := 0
	for _, step := range Steps {
		if r.HasCompleted(step) {
			completed++
		}
	}
	if completed == len(Steps) {
		return StatusCompleted
	}
	if completed > 0 {
		return StatusInProgress
	}
	if r.Status == StatusDraft {
		return StatusDraft
	}
	return r.Status
}

// MergeSteps объединяет списки завершённых шагов как множество,
// сохраняя порядок первого появления.
func MergeSteps(existing, added []string) []string {
	res := append([]string(nil), existing...)
	for _, s := range added {
		found := false
		for _, e := range res {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			res = append(res, s)
		}
	}
	return res
}
