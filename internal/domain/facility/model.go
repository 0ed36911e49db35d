package facility

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

// NoticeType is an event the facility wants pharmacy notices for.
type NoticeType string

const (
	NoticeExpired     NoticeType = "EXPIRED"
	NoticeOutdate     NoticeType = "OUTDATE"
	NoticeRecall      NoticeType = "RECALL"
	NoticeStockout    NoticeType = "STOCKOUT"
	NoticeCriticalLow NoticeType = "CRITICAL_LOW"
	NoticeDiscrepancy NoticeType = "DISCREPANCY"
)

var noticeTypes = codes.New("notice type",
	NoticeExpired, NoticeOutdate, NoticeRecall, NoticeStockout, NoticeCriticalLow, NoticeDiscrepancy)

func (n NoticeType) Valid() bool { return noticeTypes.Valid(n) }
func (n *NoticeType) Scan(src any) error { return noticeTypes.Scan(n, src) }
func ParseNoticeType(s string) (NoticeType, error) { return noticeTypes.Parse(s) }

// SheetType is a printed worksheet produced by the dispensing cabinets.
type SheetType string

const (
	SheetPick      SheetType = "PICK"
	SheetRestock   SheetType = "RESTOCK"
	SheetRefill    SheetType = "REFILL"
	SheetInventory SheetType = "INVENTORY"
)

var sheetTypes = codes.New("sheet type", SheetPick, SheetRestock, SheetRefill, SheetInventory)

func (s SheetType) Valid() bool { return sheetTypes.Valid(s) }
func (s *SheetType) Scan(src any) error { return sheetTypes.Scan(s, src) }
func ParseSheetType(v string) (SheetType, error) { return sheetTypes.Parse(v) }

// Facility is the current (or, in History, a past) version of a facility.
type Facility struct {
	Key          uuid.UUID     `json:"key"`
	Code         string        `json:"code" validate:"required,max=20"`
	Name         string        `json:"name" validate:"required,max=100"`
	Active       bool          `json:"active"`
	TimeZone     string        `json:"time_zone" validate:"required,timezone"`
	AddressLine1 *string       `json:"address_line1,omitempty" validate:"omitempty,max=100"`
	AddressLine2 *string       `json:"address_line2,omitempty" validate:"omitempty,max=100"`
	City         *string       `json:"city,omitempty" validate:"omitempty,max=60"`
	State        *string       `json:"state,omitempty" validate:"omitempty,max=30"`
	PostalCode   *string       `json:"postal_code,omitempty" validate:"omitempty,max=15"`
	Version      int           `json:"version"`
	StartUTC     time.Time     `json:"start_utc"`
	EndUTC       *time.Time    `json:"end_utc,omitempty"`
	Contacts     []Contact     `json:"contacts,omitempty" validate:"dive"`
	NoticeTypes  []NoticeType  `json:"notice_types,omitempty"`
	SheetConfigs []SheetConfig `json:"sheet_configs,omitempty" validate:"dive"`
}

// Contact maps to the facility_contact table.
type Contact struct {
	Key         uuid.UUID `json:"key"`
	FacilityKey uuid.UUID `json:"facility_key"`
	FullName    string    `json:"full_name" validate:"required,max=100"`
	Title       *string   `json:"title,omitempty" validate:"omitempty,max=60"`
	Phone       *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Email       *string   `json:"email,omitempty" validate:"omitempty,email,max=120"`
}

// SheetConfig maps to the facility_sheet_config table.
type SheetConfig struct {
	Key         uuid.UUID `json:"key"`
	FacilityKey uuid.UUID `json:"facility_key"`
	SheetType   SheetType `json:"sheet_type" validate:"required"`
	Copies      int       `json:"copies" validate:"gte=1,lte=10"`
	PrinterName *string   `json:"printer_name,omitempty" validate:"omitempty,max=100"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Name   string
	Active *bool
}
