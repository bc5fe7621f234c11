package models

import (
	"fmt"
	"time"
)

// MaxDailySequence bounds the NNN suffix of claim and result identifiers.
const MaxDailySequence = 999

const idDateLayout = "20060102"

// FormatClaimID renders CLAIM_YYYYMMDD_NNN.
func FormatClaimID(day time.Time, seq int) ClaimID {
	return ClaimID(fmt.Sprintf("CLAIM_%s_%03d", day.Format(idDateLayout), seq))
}

// FormatResultID renders RESULT_YYYYMMDD_NNN.
func FormatResultID(day time.Time, seq int) ResultID {
	return ResultID(fmt.Sprintf("RESULT_%s_%03d", day.Format(idDateLayout), seq))
}
