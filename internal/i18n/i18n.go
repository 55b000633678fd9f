// Package i18n holds the planner's user-facing labels in Arabic and English.
package i18n

import (
	"strings"

	"github.com/jwalitptl/roshita-planner/internal/model"
)

// Label keys.
const (
	BoardTitle        = "board.title"
	BoardEmpty        = "board.empty"
	BoardLoadFailed   = "board.load_failed"
	ColumnPatient     = "column.patient"
	ColumnDoctor      = "column.doctor"
	ColumnDate        = "column.date"
	ColumnTime        = "column.time"
	ColumnStatus      = "column.status"
	ColumnPrice       = "column.price"
	ColumnActions     = "column.actions"
	ActionNoShow      = "action.no_show"
	ActionDone        = "action.done"
	ActionCancel      = "action.cancel"
	WizardEnd         = "wizard.end_appointment"
	WizardFollowUp    = "wizard.follow_up"
	WizardSameDoctor  = "wizard.same_doctor"
	WizardOtherDoctor = "wizard.another_doctor"
	WizardPickSlot    = "wizard.pick_slot"
	WizardHospital    = "wizard.hospital"
	WizardDoctor      = "wizard.doctor"
	WizardService     = "wizard.service_type"
	WizardNote        = "wizard.note"
	WizardSubmit      = "wizard.submit"
	WizardClose       = "wizard.close"
	WizardSuccess     = "wizard.success"
	WizardFailed      = "wizard.failed"
	AlertSelectSlot   = "alert.select_slot"
	AlertHospital     = "alert.select_hospital"
	AlertServiceType  = "alert.select_service_type"
	AlertTerminal     = "alert.terminal"
	PageOf            = "pagination.page_of"
	EmailSubject      = "email.followup_subject"
	EmailBody         = "email.followup_body"
)

var catalogs = map[string]map[string]string{
	model.LanguageEnglish: {
		BoardTitle:        "Appointments",
		BoardEmpty:        "No upcoming appointments",
		BoardLoadFailed:   "Could not load appointments",
		ColumnPatient:     "Patient",
		ColumnDoctor:      "Doctor",
		ColumnDate:        "Date",
		ColumnTime:        "Time",
		ColumnStatus:      "Status",
		ColumnPrice:       "Price",
		ColumnActions:     "Actions",
		ActionNoShow:      "No show",
		ActionDone:        "Done",
		ActionCancel:      "Cancel",
		WizardEnd:         "End appointment",
		WizardFollowUp:    "Book a follow-up",
		WizardSameDoctor:  "Same doctor",
		WizardOtherDoctor: "Another doctor",
		WizardPickSlot:    "Choose a slot",
		WizardHospital:    "Hospital",
		WizardDoctor:      "Doctor",
		WizardService:     "Service type",
		WizardNote:        "Note",
		WizardSubmit:      "Submit",
		WizardClose:       "Close",
		WizardSuccess:     "Saved successfully",
		WizardFailed:      "Something went wrong",
		AlertSelectSlot:   "Please select a slot",
		AlertHospital:     "Please select a hospital",
		AlertServiceType:  "Please select a service type",
		AlertTerminal:     "This appointment is already closed",
		PageOf:            "Page %d of %d",
		EmailSubject:      "Your follow-up appointment is booked",
		EmailBody:         "Dear %s,\n\nYour follow-up appointment is booked for %s from %s to %s.\nConfirmation code: %s\n\nRoshita",

		"status.pending":              "Pending",
		"status.confirmed":            "Confirmed",
		"status.completed":            "Completed",
		"status.cancelled":            "Cancelled",
		"status.cancelled_by_patient": "Cancelled by patient",
		"status.cancelled_by_doctor":  "Cancelled by doctor",
		"status.rejected":             "Rejected",
		"status.not_attend":           "Did not attend",

		"service.shelter":           "Shelter",
		"service.shelter_operation": "Shelter and operation",
		"service.operation":         "Operation",
	},
	model.LanguageArabic: {
		BoardTitle:        "المواعيد",
		BoardEmpty:        "لا توجد مواعيد قادمة",
		BoardLoadFailed:   "تعذر تحميل المواعيد",
		ColumnPatient:     "المريض",
		ColumnDoctor:      "الطبيب",
		ColumnDate:        "التاريخ",
		ColumnTime:        "الوقت",
		ColumnStatus:      "الحالة",
		ColumnPrice:       "السعر",
		ColumnActions:     "الإجراءات",
		ActionNoShow:      "لم يحضر",
		ActionDone:        "تم",
		ActionCancel:      "إلغاء",
		WizardEnd:         "إنهاء الموعد",
		WizardFollowUp:    "حجز متابعة",
		WizardSameDoctor:  "نفس الطبيب",
		WizardOtherDoctor: "طبيب آخر",
		WizardPickSlot:    "اختر موعدا",
		WizardHospital:    "المستشفى",
		WizardDoctor:      "الطبيب",
		WizardService:     "نوع الخدمة",
		WizardNote:        "ملاحظة",
		WizardSubmit:      "إرسال",
		WizardClose:       "إغلاق",
		WizardSuccess:     "تم الحفظ بنجاح",
		WizardFailed:      "حدث خطأ ما",
		AlertSelectSlot:   "الرجاء اختيار موعد",
		AlertHospital:     "الرجاء اختيار مستشفى",
		AlertServiceType:  "الرجاء اختيار نوع الخدمة",
		AlertTerminal:     "هذا الموعد مغلق بالفعل",
		PageOf:            "صفحة %d من %d",
		EmailSubject:      "تم حجز موعد المتابعة",
		EmailBody:         "عزيزي %s،\n\nتم حجز موعد المتابعة بتاريخ %s من %s إلى %s.\nرمز التأكيد: %s\n\nروشيتة",

		"status.pending":              "قيد الانتظار",
		"status.confirmed":            "مؤكد",
		"status.completed":            "مكتمل",
		"status.cancelled":            "ملغي",
		"status.cancelled_by_patient": "ألغاه المريض",
		"status.cancelled_by_doctor":  "ألغاه الطبيب",
		"status.rejected":             "مرفوض",
		"status.not_attend":           "لم يحضر",

		"service.shelter":           "إيواء",
		"service.shelter_operation": "إيواء وعملية",
		"service.operation":         "عملية",
	},
}

// Catalog resolves labels for one language.
type Catalog struct {
	lang   string
	labels map[string]string
}

// Supported reports whether lang has its own catalog.
func Supported(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

// For returns the catalog for lang, or for fallback when lang is unknown.
func For(lang, fallback string) *Catalog {
	if labels, ok := catalogs[lang]; ok {
		return &Catalog{lang: lang, labels: labels}
	}
	if labels, ok := catalogs[fallback]; ok {
		return &Catalog{lang: fallback, labels: labels}
	}
	return &Catalog{lang: model.LanguageArabic, labels: catalogs[model.LanguageArabic]}
}

func (c *Catalog) Language() string {
	return c.lang
}

// RTL reports right-to-left layout.
func (c *Catalog) RTL() bool {
	return c.lang == model.LanguageArabic
}

// T returns the label for key, or the key itself when there is none.
func (c *Catalog) T(key string) string {
	if v, ok := c.labels[key]; ok {
		return v
	}
	return key
}

// Labels returns a copy of every label.
func (c *Catalog) Labels() map[string]string {
	out := make(map[string]string, len(c.labels))
	for k, v := range c.labels {
		out[k] = v
	}
	return out
}

// Status translates a reservation status, falling back to the raw value.
func (c *Catalog) Status(s model.ReservationStatus) string {
	key := "status." + strings.ReplaceAll(strings.ToLower(strings.Join(strings.Fields(string(s)), " ")), " ", "_")
	if v, ok := c.labels[key]; ok {
		return v
	}
	return string(s)
}

func (c *Catalog) ServiceType(s model.ServiceType) string {
	key := "service." + strings.ToLower(string(s))
	if v, ok := c.labels[key]; ok {
		return v
	}
	return string(s)
}
