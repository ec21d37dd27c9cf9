package models

import (
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RolePatient = "patient"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDoctor, RoleNurse, RolePatient:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name         string    `gorm:"not null"                  json:"name"`
	Email        string    `gorm:"uniqueIndex;not null"      json:"email"`
	PasswordHash string    `gorm:"not null"                  json:"-"`
	Role         string    `gorm:"not null;default:patient"  json:"role"`
	IsActive     bool      `gorm:"not null;default:true"     json:"isActive"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

const (
	LogStatusTaken     = "taken"
	LogStatusMissed    = "missed"
	LogStatusPostponed = "postponed"
)

func ValidLogStatus(status string) bool {
	switch status {
	case LogStatusTaken, LogStatusMissed, LogStatusPostponed:
		return true
	}
	return false
}

type Medication struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string     `gorm:"index;not null"           json:"name"`
	Description    string     `json:"description,omitempty"`
	Dosage         string     `gorm:"not null"                 json:"dosage"`
	Frequency      string     `gorm:"not null"                 json:"frequency"`
	StartDate      time.Time  `gorm:"not null"                 json:"startDate"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	Instructions   string     `json:"instructions,omitempty"`
	PatientID      uint       `gorm:"index;not null"           json:"patientId"`
	PrescribedByID uint       `gorm:"index"                    json:"prescribedById"`
	IsActive       bool       `gorm:"not null;default:true"    json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	Patient      *User `gorm:"foreignKey:PatientID"      json:"patient,omitempty"`
	PrescribedBy *User `gorm:"foreignKey:PrescribedByID" json:"prescribedBy,omitempty"`
}

type MedicationLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MedicationID uint      `gorm:"index;not null"           json:"medicationId"`
	PatientID    uint      `gorm:"index;not null"           json:"patientId"`
	TakenAt      time.Time `gorm:"not null"                 json:"takenAt"`
	Status       string    `gorm:"not null;default:taken"   json:"status"`
	Notes        string    `json:"notes,omitempty"`
	RecordedByID uint      `gorm:"not null"                 json:"recordedById"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	RecordedBy *User `gorm:"foreignKey:RecordedByID" json:"recordedBy,omitempty"`
}
