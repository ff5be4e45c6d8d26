package domain

// Typed field sets for each target table. A Record stores one of these as its
// Data payload; the dispatcher decodes partial updates against them so that
// unknown or mistyped fields are rejected.

// OperationalReport is a periodic equipment status report.
type OperationalReport struct {
	EquipmentID string `json:"equipment_id"`
	ReportDate  string `json:"report_date"`
	Shift       string `json:"shift,omitempty"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
}

// KTAKPIData is a KTA/TTA safety finding or KPI measurement.
type KTAKPIData struct {
	Period   string  `json:"period"`
	Category string  `json:"category"`
	Target   float64 `json:"target"`
	Actual   float64 `json:"actual"`
	Finding  string  `json:"finding,omitempty"`
	Status   string  `json:"status"`
}

// CriticalIssue tracks a critical equipment problem.
type CriticalIssue struct {
	EquipmentID string `json:"equipment_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`
}

// SafetyIncident records a safety event.
type SafetyIncident struct {
	IncidentDate string `json:"incident_date"`
	Location     string `json:"location"`
	Severity     string `json:"severity"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
}

// EnergyConsumption records energy usage for a period.
type EnergyConsumption struct {
	Period      string  `json:"period"`
	Source      string  `json:"source"`
	Consumption float64 `json:"consumption"`
	Unit        string  `json:"unit"`
}

// Notification is a maintenance notification.
type Notification struct {
	Number      string `json:"number"`
	EquipmentID string `json:"equipment_id"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`
}

// Order is a maintenance work order.
type Order struct {
	Number             string  `json:"number"`
	NotificationNumber string  `json:"notification_number,omitempty"`
	Description        string  `json:"description,omitempty"`
	PlannedCost        float64 `json:"planned_cost,omitempty"`
	Status             string  `json:"status"`
}

// MaintenanceRoutine is a recurring maintenance task.
type MaintenanceRoutine struct {
	EquipmentID string `json:"equipment_id"`
	Task        string `json:"task"`
	Interval    string `json:"interval"`
	NextDue     string `json:"next_due,omitempty"`
	Status      string `json:"status,omitempty"`
}
