package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"medtrack/internal/apperr"
	"medtrack/internal/logging"
	authmw "medtrack/internal/middleware/auth"
	"medtrack/internal/models"
	"medtrack/internal/mykafka"
	"medtrack/internal/service/search"
	"medtrack/internal/util"
)

type MedicationHandler struct {
	DB       *gorm.DB
	ES       *elasticsearch.Client
	Index    string
	Producer *mykafka.Producer
}

type medicationRequest struct {
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	Dosage       *string    `json:"dosage"`
	Frequency    *string    `json:"frequency"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	Instructions *string    `json:"instructions"`
	PatientID    *uint      `json:"patientId"`
	IsActive     *bool      `json:"isActive"`
}

func (r *medicationRequest) validate(isUpdate bool) []string {
	var errs []string

	required := func(set bool, msg string) {
		if !set && !isUpdate {
			errs = append(errs, msg)
		}
	}
	required(r.Name != nil, "Name is required")
	required(r.Dosage != nil, "Dosage is required")
	required(r.Frequency != nil, "Frequency is required")
	required(r.StartDate != nil, "Start date is required")
	required(r.PatientID != nil, "Patient ID is required")

	if r.Name != nil && (len(*r.Name) < 2 || len(*r.Name) > 100) {
		errs = append(errs, "Name must be between 2 and 100 characters")
	}
	if r.Description != nil && len(*r.Description) > 500 {
		errs = append(errs, "Description cannot exceed 500 characters")
	}
	if r.Instructions != nil && len(*r.Instructions) > 1000 {
		errs = append(errs, "Instructions cannot exceed 1000 characters")
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		errs = append(errs, "End date must be after start date")
	}
	return errs
}

func (h *MedicationHandler) CreateMedication(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	var req medicationRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if errs := req.validate(false); len(errs) > 0 {
		return apperr.BadRequest("Validation error", errs...)
	}

	med := models.Medication{
		Name:           *req.Name,
		Dosage:         *req.Dosage,
		Frequency:      *req.Frequency,
		StartDate:      *req.StartDate,
		EndDate:        req.EndDate,
		PatientID:      *req.PatientID,
		PrescribedByID: user.ID,
		IsActive:       true,
	}
	if req.Description != nil {
		med.Description = *req.Description
	}
	if req.Instructions != nil {
		med.Instructions = *req.Instructions
	}
	if req.IsActive != nil {
		med.IsActive = *req.IsActive
	}

	if err := h.DB.WithContext(c.Request().Context()).Create(&med).Error; err != nil {
		return err
	}

	h.indexMedication(c, &med)
	h.publishMedicationEvent(c, "medication_created", &med)

	return c.JSON(http.StatusCreated, echo.Map{
		"success":    true,
		"medication": med,
	})
}

func (h *MedicationHandler) GetMedications(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	q := h.DB.WithContext(c.Request().Context()).Model(&models.Medication{})

	// patients see their own records, doctors what they prescribed,
	// admins and nurses everything
	switch user.Role {
	case models.RolePatient:
		q = q.Where("patient_id = ?", user.ID)
	case models.RoleDoctor:
		q = q.Where("prescribed_by_id = ?", user.ID)
	}

	if patient := c.QueryParam("patient"); patient != "" && user.Role != models.RolePatient {
		if id, err := strconv.ParseUint(patient, 10, 64); err == nil {
			q = q.Where("patient_id = ?", uint(id))
		}
	}
	if active := c.QueryParam("active"); active != "" {
		q = q.Where("is_active = ?", active == "true")
	}
	if startDate := c.QueryParam("startDate"); startDate != "" {
		if t, err := time.Parse(time.RFC3339, startDate); err == nil {
			q = q.Where("start_date >= ?", t)
		}
	}
	if endDate := c.QueryParam("endDate"); endDate != "" {
		if t, err := time.Parse(time.RFC3339, endDate); err == nil {
			q = q.Where("end_date <= ?", t)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, limit := util.Calculate(page, size)
	if page < 1 {
		page = 1
	}

	var meds []models.Medication
	if err := q.Preload("Patient").Preload("PrescribedBy").
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&meds).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"count":       len(meds),
		"total":       total,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
		"medications": meds,
	})
}

func (h *MedicationHandler) GetMedication(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	med, err := h.findMedication(c, true)
	if err != nil {
		return err
	}

	if err := checkOwnership(user, med, "Not authorized to access this medication"); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"medication": med,
	})
}

func (h *MedicationHandler) UpdateMedication(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	var req medicationRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if errs := req.validate(true); len(errs) > 0 {
		return apperr.BadRequest("Validation error", errs...)
	}

	med, err := h.findMedication(c, false)
	if err != nil {
		return err
	}

	if user.Role == models.RoleDoctor && med.PrescribedByID != user.ID {
		return apperr.Forbidden("Not authorized to update this medication")
	}

	if req.Name != nil {
		med.Name = *req.Name
	}
	if req.Description != nil {
		med.Description = *req.Description
	}
	if req.Dosage != nil {
		med.Dosage = *req.Dosage
	}
	if req.Frequency != nil {
		med.Frequency = *req.Frequency
	}
	if req.StartDate != nil {
		med.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		med.EndDate = req.EndDate
	}
	if req.Instructions != nil {
		med.Instructions = *req.Instructions
	}
	if req.PatientID != nil {
		med.PatientID = *req.PatientID
	}
	if req.IsActive != nil {
		med.IsActive = *req.IsActive
	}

	if err := h.DB.WithContext(c.Request().Context()).Save(med).Error; err != nil {
		return err
	}

	h.indexMedication(c, med)
	h.publishMedicationEvent(c, "medication_updated", med)

	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"medication": med,
	})
}

func (h *MedicationHandler) DeleteMedication(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	med, err := h.findMedication(c, false)
	if err != nil {
		return err
	}

	if user.Role == models.RoleDoctor && med.PrescribedByID != user.ID {
		return apperr.Forbidden("Not authorized to delete this medication")
	}

	ctx := c.Request().Context()
	if err := h.DB.WithContext(ctx).Delete(&models.Medication{}, med.ID).Error; err != nil {
		return err
	}
	if err := h.DB.WithContext(ctx).Where("medication_id = ?", med.ID).Delete(&models.MedicationLog{}).Error; err != nil {
		return err
	}

	if h.ES != nil {
		if err := search.DeleteMedication(ctx, h.ES, h.Index, med.ID); err != nil {
			logging.FromContext(ctx).Error("es delete error", "error", err)
		}
	}
	h.publishMedicationEvent(c, "medication_deleted", med)

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Medication deleted successfully",
	})
}

func (h *MedicationHandler) LogIntake(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	med, err := h.findMedication(c, false)
	if err != nil {
		return err
	}

	if user.Role == models.RolePatient && med.PatientID != user.ID {
		return apperr.Forbidden("Not authorized to log this medication")
	}

	var req struct {
		Status  string     `json:"status"`
		Notes   string     `json:"notes"`
		TakenAt *time.Time `json:"takenAt"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if req.Status == "" {
		req.Status = models.LogStatusTaken
	}
	if !models.ValidLogStatus(req.Status) {
		return apperr.BadRequest("Status must be one of: taken, missed, postponed")
	}

	takenAt := time.Now()
	if req.TakenAt != nil {
		takenAt = *req.TakenAt
	}

	entry := models.MedicationLog{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		TakenAt:      takenAt,
		Status:       req.Status,
		Notes:        req.Notes,
		RecordedByID: user.ID,
	}
	if err := h.DB.WithContext(c.Request().Context()).Create(&entry).Error; err != nil {
		return err
	}

	h.publishMedicationEvent(c, "intake_logged", med)

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"log":     entry,
	})
}

func (h *MedicationHandler) GetLogs(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	med, err := h.findMedication(c, false)
	if err != nil {
		return err
	}

	if err := checkOwnership(user, med, "Not authorized to access these logs"); err != nil {
		return err
	}

	q := h.DB.WithContext(c.Request().Context()).Model(&models.MedicationLog{}).
		Where("medication_id = ?", med.ID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, limit := util.Calculate(page, size)
	if page < 1 {
		page = 1
	}

	var logs []models.MedicationLog
	if err := q.Preload("RecordedBy").
		Order("taken_at DESC").Offset(offset).Limit(limit).
		Find(&logs).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"count":       len(logs),
		"total":       total,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
		"logs":        logs,
	})
}

func checkOwnership(user *models.User, med *models.Medication, message string) error {
	if user.Role == models.RolePatient && med.PatientID != user.ID {
		return apperr.Forbidden(message)
	}
	if user.Role == models.RoleDoctor && med.PrescribedByID != user.ID {
		return apperr.Forbidden(message)
	}
	return nil
}

func (h *MedicationHandler) findMedication(c echo.Context, preload bool) (*models.Medication, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, apperr.NotFound("Medication not found")
	}

	q := h.DB.WithContext(c.Request().Context())
	if preload {
		q = q.Preload("Patient").Preload("PrescribedBy")
	}

	var med models.Medication
	if err := q.First(&med, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Medication not found")
		}
		return nil, err
	}
	return &med, nil
}

func (h *MedicationHandler) indexMedication(c echo.Context, med *models.Medication) {
	if h.ES == nil {
		return
	}
	ctx := c.Request().Context()
	if err := search.IndexMedication(ctx, h.ES, h.Index, med); err != nil {
		logging.FromContext(ctx).Error("es index error", "error", err)
	}
}

func (h *MedicationHandler) publishMedicationEvent(c echo.Context, eventType string, med *models.Medication) {
	event := echo.Map{
		"type":         eventType,
		"medicationId": med.ID,
		"patientId":    med.PatientID,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Producer.PublishEvent(ctx, "medication_events", fmt.Sprint(med.ID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}
