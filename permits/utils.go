package permits

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/linesmerrill/commute-permit-api/models"
)

// Verification messages returned by Verify
const (
	MessageNotFound = "permit not found"
	MessageRevoked  = "this permit has been revoked"
	MessageExpired  = "this permit has expired"
	MessageValid    = "valid permit"
)

// UnknownValue replaces display fields that cannot be recovered
const UnknownValue = "unknown"

var statusLabels = map[models.PermitStatus]string{
	models.PermitValid:   "Active",
	models.PermitExpired: "Expired",
	models.PermitRevoked: "Revoked",
}

// CalculateExpiration returns the earliest of the three expiration dates
func CalculateExpiration(licenseExp, vehicleExp, insuranceExp time.Time) time.Time {
	min := licenseExp
	if vehicleExp.Before(min) {
		min = vehicleExp
	}
	if insuranceExp.Before(min) {
		min = insuranceExp
	}
	return min
}

// DaysUntilExpiration counts days from now to expiration, rounding partial
// days up. Negative values mean the date has already passed.
func DaysUntilExpiration(expiration, now time.Time) int {
	return int(math.Ceil(expiration.Sub(now).Hours() / 24))
}

// IsValid reports whether the permit is valid at now
func IsValid(p models.Permit, now time.Time) bool {
	return p.Status == models.PermitValid && p.ExpirationDate.After(now)
}

// EffectiveStatus folds the expiration date into the stored status. Revoked
// wins over expired.
func EffectiveStatus(p models.Permit, now time.Time) models.PermitStatus {
	switch {
	case p.Status == models.PermitRevoked:
		return models.PermitRevoked
	case p.Status == models.PermitExpired || !p.ExpirationDate.After(now):
		return models.PermitExpired
	}
	return models.PermitValid
}

// StatusLabel returns the display label of a status
func StatusLabel(s models.PermitStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// FormatDate formats t as YYYY年MM月DD日 in loc
func FormatDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%04d年%02d月%02d日", t.Year(), int(t.Month()), t.Day())
}

// BuildVerificationURL returns the public verification address of a token
func BuildVerificationURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + url.PathEscape(token)
}

// DownloadFilename returns the file name offered for a permit download
func DownloadFilename(p models.Permit) string {
	return fmt.Sprintf("permit_%s_%s.pdf", p.EmployeeName, p.VehicleNumber)
}

// ContentDisposition builds an attachment header carrying both an ASCII
// filename and the RFC 5987 encoded UTF-8 filename
func ContentDisposition(filename string) string {
	encoded := url.PathEscape(filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, encoded, encoded)
}
