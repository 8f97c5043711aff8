package models

import "time"

// Equipment status values. These are the canonical ledger statuses and are
// stored verbatim in the database and in operation-log snapshots.
const (
	StatusInUse    = "在用" // in use
	StatusStopped  = "停用" // out of service
	StatusScrapped = "报废" // scrapped
)

// Calibration result values.
const (
	ResultPass = "合格"
	ResultFail = "不合格"
)

// Equipment is one measuring-instrument row in the ledger.
type Equipment struct {
	ID                       int        `json:"id"`
	Name                     string     `json:"name"`
	Model                    string     `json:"model,omitempty"`
	AccuracyLevel            string     `json:"accuracy_level,omitempty"`
	MeasurementRange         string     `json:"measurement_range,omitempty"`
	CalibrationCycle         int        `json:"calibration_cycle,omitempty"` // months
	CalibrationDate          *time.Time `json:"calibration_date,omitempty"`
	CalibrationMethod        string     `json:"calibration_method,omitempty"`
	CurrentCalibrationResult string     `json:"current_calibration_result,omitempty"`
	CertificateNumber        string     `json:"certificate_number,omitempty"`
	VerificationAgency       string     `json:"verification_agency,omitempty"`
	CertificateForm          string     `json:"certificate_form,omitempty"`
	InstallationLocation     string     `json:"installation_location,omitempty"`
	Manufacturer             string     `json:"manufacturer,omitempty"`
	ManufactureDate          *time.Time `json:"manufacture_date,omitempty"`
	ScaleValue               string     `json:"scale_value,omitempty"`
	ManagementLevel          string     `json:"management_level,omitempty"`
	OriginalValue            float64    `json:"original_value,omitempty"`
	Status                   string     `json:"status"`
	StatusChangeDate         *time.Time `json:"status_change_date,omitempty"`
	Notes                    string     `json:"notes,omitempty"`
	ValidUntil               *time.Time `json:"valid_until,omitempty"`
	InternalID               string     `json:"internal_id,omitempty"`
	ManufacturerID           string     `json:"manufacturer_id,omitempty"` // manufacturer serial number
	DepartmentID             *int       `json:"department_id,omitempty"`
	CategoryID               *int       `json:"category_id,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}
