package markethours

import "time"

// nseHolidays maps a yyyymmdd key (IST) to the session holiday's name.
// Weekend-falling holidays are omitted; IsTradingDay already excludes
// Saturdays and Sundays. Source: NSE trading holiday circulars.
var nseHolidays = map[int]string{
	// 2025
	20250226: "Mahashivratri",
	20250314: "Holi",
	20250331: "Id-ul-Fitr",
	20250410: "Mahavir Jayanti",
	20250414: "Dr. Ambedkar Jayanti",
	20250418: "Good Friday",
	20250501: "Maharashtra Day",
	20250815: "Independence Day",
	20250827: "Ganesh Chaturthi",
	20251002: "Mahatma Gandhi Jayanti / Dussehra",
	20251021: "Diwali Laxmi Pujan",
	20251022: "Diwali Balipratipada",
	20251105: "Guru Nanak Jayanti",
	20251225: "Christmas",

	// 2026 — later dates tentative until the exchange confirms the calendar.
	20260126: "Republic Day",
	20260217: "Mahashivratri",
	20260314: "Holi",
	20260331: "Id-ul-Fitr",
	20260402: "Ram Navami",
	20260406: "Mahavir Jayanti",
	20260410: "Good Friday",
	20260414: "Dr. Ambedkar Jayanti",
	20260501: "Maharashtra Day",
	20260607: "Bakrid",
	20260706: "Muharram",
	20260815: "Independence Day",
	20260816: "Janmashtami",
	20260905: "Milad-un-Nabi",
	20261002: "Mahatma Gandhi Jayanti",
	20261020: "Dussehra",
	20261021: "Dussehra (observed)",
	20261105: "Diwali Laxmi Pujan",
	20261106: "Diwali Balipratipada",
	20261107: "Bhai Dooj",
	20261119: "Guru Nanak Jayanti",
	20261225: "Christmas",
}

func dayKey(t time.Time) int {
	ist := t.In(IST)
	return ist.Year()*10000 + int(ist.Month())*100 + ist.Day()
}

// IsHoliday reports whether the date (in IST) is an exchange holiday.
func IsHoliday(t time.Time) bool {
	_, ok := nseHolidays[dayKey(t)]
	return ok
}

// HolidayName returns the holiday observed on the date, if any.
func HolidayName(t time.Time) (string, bool) {
	name, ok := nseHolidays[dayKey(t)]
	return name, ok
}
