package model

import "time"

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on-hold"
)

// Project is read-only from the grid's point of view.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartDate   string        `json:"startDate,omitempty"`
	Status      ProjectStatus `json:"status"`
	Color       string        `json:"color,omitempty"`
	CompanyID   string        `json:"companyId"`
}

// Company scopes which entries and projects are visible.
type Company struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Paycycles   []Paycycle   `json:"paycycles"`
	Departments []Department `json:"departments"`
	Locations   []Location   `json:"locations"`
	Employees   []Employee   `json:"employees"`
}

type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Employee struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	DepartmentID string `json:"departmentId,omitempty"`
	LocationID   string `json:"locationId,omitempty"`
}

// Frequency is how often a paycycle repeats.
type Frequency string

const (
	FrequencyWeekly      Frequency = "weekly"
	FrequencyBiweekly    Frequency = "biweekly"
	FrequencySemimonthly Frequency = "semimonthly"
	FrequencyMonthly     Frequency = "monthly"
)

// PaycycleStatus is derived from the paycycle dates, never stored.
type PaycycleStatus string

const (
	PaycycleUpcoming   PaycycleStatus = "upcoming"
	PaycycleOpen       PaycycleStatus = "open"
	PaycycleProcessing PaycycleStatus = "processing"
	PaycycleClosed     PaycycleStatus = "closed"
)

// Paycycle is a pay period. Dates are calendar days ("YYYY-MM-DD").
type Paycycle struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Frequency Frequency `json:"frequency"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	PayDate   string    `json:"payDate"`
}

// StatusAt derives the paycycle status on the calendar day of now.
// Unparseable dates yield upcoming.
//
//	day < start            upcoming
//	start <= day <= end    open
//	end < day <= pay date  processing
//	day > pay date         closed
func (p Paycycle) StatusAt(now time.Time) PaycycleStatus {
	day := now.Format("2006-01-02")
	if p.StartDate == "" || p.EndDate == "" {
		return PaycycleUpcoming
	}
	if _, err := time.Parse("2006-01-02", p.StartDate); err != nil {
		return PaycycleUpcoming
	}
	if _, err := time.Parse("2006-01-02", p.EndDate); err != nil {
		return PaycycleUpcoming
	}
	// ISO dates compare correctly as strings.
	switch {
	case day < p.StartDate:
		return PaycycleUpcoming
	case day <= p.EndDate:
		return PaycycleOpen
	case p.PayDate != "" && day <= p.PayDate:
		return PaycycleProcessing
	default:
		return PaycycleClosed
	}
}
