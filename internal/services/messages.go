package services

import (
	"fmt"
	"math"
	"time"
)

// Locale selects the language of user-facing messages
type Locale string

const (
	LocaleKorean  Locale = "ko"
	LocaleEnglish Locale = "en"
)

type messageKey int

const (
	msgClockedIn messageKey = iota
	msgClockedOut
	msgAlreadyClockedIn
	msgAlreadyClockedOut
	msgNotClockedIn
	msgBusy
	msgOutsideGeofence
	msgPermissionDenied
	msgServiceDisabled
	msgLocationUnavailable
	msgTimeout
	msgFallbackUsed
	msgHazardTitle
	msgHazardBody
	msgHazardAdmin
	msgNoRecordToday
	msgHelp
	msgNotRegistered
	msgShareLocation
	msgNoHistory
	msgShiftVoided
)

var catalogs = map[Locale]map[messageKey]string{
	LocaleKorean: {
		msgClockedIn:           "✅ 출근 완료: %s",
		msgClockedOut:          "✅ 퇴근 완료: %s",
		msgAlreadyClockedIn:    "ℹ️ 이미 출근했습니다 (%s)",
		msgAlreadyClockedOut:   "ℹ️ 이미 퇴근했습니다 (%s)",
		msgNotClockedIn:        "⚠️ 출근 기록이 없어 퇴근할 수 없습니다",
		msgBusy:                "⏳ 처리 중입니다. 잠시만 기다려 주세요",
		msgOutsideGeofence:     "📍 근무지에서 %dm 떨어져 있습니다 (허용 %dm)",
		msgPermissionDenied:    "🔒 위치 권한이 필요합니다. 설정에서 허용해 주세요: %s",
		msgServiceDisabled:     "📴 기기의 위치 서비스를 켜 주세요",
		msgLocationUnavailable: "❌ 현재 위치를 확인할 수 없습니다. 다시 시도해 주세요",
		msgTimeout:             "⌛ 요청 시간이 초과되었습니다 (단계: %s)",
		msgFallbackUsed:        "⚠️ `%s` 님이 GPS 없이 `%s` 처리되었습니다 (%s)",
		msgHazardTitle:         "🚨 새 위험 신고",
		msgHazardBody:          "탭하여 신고 내용을 확인하세요",
		msgHazardAdmin:         "🚨 *위험 신고*\n📝 %s\n🖼 %s\n👤 `%s`",
		msgNoRecordToday:       "오늘 출근 기록이 없습니다",
		msgHelp:                "🏗 출퇴근 관리\n\n/clockin - 출근\n/clockout - 퇴근\n/today - 오늘 기록\n/history - 최근 7일\n/getid - 채팅 ID",
		msgNotRegistered:       "❌ 등록되지 않은 사용자입니다. 관리자에게 채팅 ID를 알려 주세요: %d",
		msgShareLocation:       "📍 위치를 공유해 주세요",
		msgNoHistory:           "최근 기록이 없습니다",
		msgShiftVoided:         "🚫 오늘 근무 기록은 관리자에 의해 무효 처리되었습니다",
	},
	LocaleEnglish: {
		msgClockedIn:           "✅ Clocked in at %s",
		msgClockedOut:          "✅ Clocked out at %s",
		msgAlreadyClockedIn:    "ℹ️ Already clocked in at %s",
		msgAlreadyClockedOut:   "ℹ️ Already clocked out at %s",
		msgNotClockedIn:        "⚠️ Cannot clock out without clock-in",
		msgBusy:                "⏳ Still working on your last request",
		msgOutsideGeofence:     "📍 You are %dm from the work site (limit %dm)",
		msgPermissionDenied:    "🔒 Location permission is required. Enable it in settings: %s",
		msgServiceDisabled:     "📴 Turn on location services on your device",
		msgLocationUnavailable: "❌ Could not determine your location. Please try again",
		msgTimeout:             "⌛ The request timed out while %s",
		msgFallbackUsed:        "⚠️ `%s`: `%s` recorded without a GPS fix (%s)",
		msgHazardTitle:         "🚨 New hazard report",
		msgHazardBody:          "Tap to review the report",
		msgHazardAdmin:         "🚨 *Hazard report*\n📝 %s\n🖼 %s\n👤 `%s`",
		msgNoRecordToday:       "No clock-in today",
		msgHelp:                "🏗 Attendance\n\n/clockin - clock in\n/clockout - clock out\n/today - today's record\n/history - last 7 days\n/getid - chat ID",
		msgNotRegistered:       "❌ You are not registered. Send your chat ID to an admin: %d",
		msgShareLocation:       "📍 Please share your location",
		msgNoHistory:           "No recent records",
		msgShiftVoided:         "🚫 Today's shift was voided by an admin",
	},
}

// Catalog formats user-facing text for one locale in the work-date timezone
type Catalog struct {
	locale Locale
	zone   *time.Location
}

// NewCatalog returns a catalog. Unknown locales fall back to Korean.
func NewCatalog(locale Locale, zone *time.Location) Catalog {
	if _, ok := catalogs[locale]; !ok {
		locale = LocaleKorean
	}
	if zone == nil {
		zone = DefaultWorkDateZone
	}
	return Catalog{locale: locale, zone: zone}
}

// Locale returns the catalog language
func (c Catalog) Locale() Locale { return c.locale }

func (c Catalog) text(key messageKey, args ...any) string {
	format := catalogs[c.locale][key]
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Clock formats t as a wall-clock time in the work-date zone
func (c Catalog) Clock(t time.Time) string {
	return t.In(c.zone).Format("15:04")
}

func (c Catalog) ClockedIn(at time.Time) string        { return c.text(msgClockedIn, c.Clock(at)) }
func (c Catalog) ClockedOut(at time.Time) string       { return c.text(msgClockedOut, c.Clock(at)) }
func (c Catalog) AlreadyClockedIn(at time.Time) string { return c.text(msgAlreadyClockedIn, c.Clock(at)) }
func (c Catalog) AlreadyClockedOut(at time.Time) string {
	return c.text(msgAlreadyClockedOut, c.Clock(at))
}
func (c Catalog) NotClockedIn() string    { return c.text(msgNotClockedIn) }
func (c Catalog) Busy() string            { return c.text(msgBusy) }
func (c Catalog) NoRecordToday() string   { return c.text(msgNoRecordToday) }
func (c Catalog) NoHistory() string       { return c.text(msgNoHistory) }
func (c Catalog) Help() string            { return c.text(msgHelp) }
func (c Catalog) ShareLocation() string   { return c.text(msgShareLocation) }
func (c Catalog) ShiftVoided() string     { return c.text(msgShiftVoided) }
func (c Catalog) HazardTitle() string     { return c.text(msgHazardTitle) }
func (c Catalog) HazardBody() string      { return c.text(msgHazardBody) }
func (c Catalog) ServiceDisabled() string { return c.text(msgServiceDisabled) }
func (c Catalog) LocationUnavailable() string {
	return c.text(msgLocationUnavailable)
}

func (c Catalog) OutsideGeofence(distance, radius float64) string {
	return c.text(msgOutsideGeofence, int(math.Round(distance)), int(math.Round(radius)))
}

func (c Catalog) PermissionDenied(settingsURL string) string {
	return c.text(msgPermissionDenied, settingsURL)
}

func (c Catalog) Timeout(phase Phase) string { return c.text(msgTimeout, phase) }

func (c Catalog) FallbackUsed(userID, event string, at time.Time) string {
	return c.text(msgFallbackUsed, userID, event, c.Clock(at))
}

func (c Catalog) HazardAdmin(comment, photoURL, createdBy string) string {
	return c.text(msgHazardAdmin, comment, photoURL, createdBy)
}

func (c Catalog) NotRegistered(chatID int64) string { return c.text(msgNotRegistered, chatID) }
