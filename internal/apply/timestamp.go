package apply

import "time"

// cst is a fixed UTC-6 zone. It is always labelled CST, even in summer.
var cst = time.FixedZone("CST", -6*60*60)

// FormatCST renders t as "2006-01-02 03:04:05 PM CST".
func FormatCST(t time.Time) string {
	return t.In(cst).Format("2006-01-02 03:04:05 PM") + " CST"
}
