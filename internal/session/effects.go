package session

import (
	"github.com/goodtune/reelfocus/internal/storage"
)

// EffectKind names a side-effect request for the presentation layer.
type EffectKind string

const (
	KindShowOverlay    EffectKind = "show_overlay"
	KindHideOverlay    EffectKind = "hide_overlay"
	KindShowInterrupt  EffectKind = "show_interrupt"
	KindShowDailyBlock EffectKind = "show_daily_block"
	KindRecordHistory  EffectKind = "record_history"
)

// Effect is a side-effect request emitted by the state machine.
type Effect interface {
	Kind() EffectKind
}

// ShowOverlay updates the countdown badge. Remaining is in seconds for TIME
// limits and in items for COUNT limits.
type ShowOverlay struct {
	LimitType    storage.LimitType `json:"limit_type"`
	Remaining    int               `json:"remaining"`
	SessionLabel string            `json:"session_label"`
	Warning      bool              `json:"warning"`
}

// HideOverlay removes the countdown badge.
type HideOverlay struct{}

// ShowInterrupt tells the user the session quota is used up.
type ShowInterrupt struct {
	AppName           string `json:"app_name"`
	LimitDescription  string `json:"limit_description"`
	SessionLabel      string `json:"session_label"`
	DailyLimitReached bool   `json:"daily_limit_reached"`
}

// ShowDailyBlock tells the user no sessions remain today.
type ShowDailyBlock struct {
	AppName      string `json:"app_name"`
	SessionLabel string `json:"session_label"`
}

// RecordHistory asks for a finished session to be written to history.
type RecordHistory struct {
	Entry storage.HistoryEntry `json:"entry"`
}

func (ShowOverlay) Kind() EffectKind    { return KindShowOverlay }
func (HideOverlay) Kind() EffectKind    { return KindHideOverlay }
func (ShowInterrupt) Kind() EffectKind  { return KindShowInterrupt }
func (ShowDailyBlock) Kind() EffectKind { return KindShowDailyBlock }
func (RecordHistory) Kind() EffectKind  { return KindRecordHistory }
