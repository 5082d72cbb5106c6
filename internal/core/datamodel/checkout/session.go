package checkout

import "time"

// PaymentSession is the single in-flight slot of one checkout profile. Payload holds the
// JSON-encoded session so that schema drift surfaces as a decode failure, not a scan error.
type PaymentSession struct {
	ProfileID string    `gorm:"column:profile_id;primaryKey"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (PaymentSession) TableName() string {
	return "payment_sessions"
}
