package checkout

import (
	"encoding/json"
	"time"
)

type PurchaseType string

const (
	CoursePurchase                PurchaseType = "StudentCoursePurchase"
	CoursePurchaseWithCoaching    PurchaseType = "StudentCoursePurchaseWithCoaching"
	PackagePurchase               PurchaseType = "StudentPackagePurchase"
	PackagePurchaseWithCoaching   PurchaseType = "StudentPackagePurchaseWithCoaching"
	CoachingSessionPurchase       PurchaseType = "StudentCoachingSessionPurchase"
	CourseCoachingSessionPurchase PurchaseType = "StudentCourseCoachingSessionPurchase"
)

type ItemType string

const (
	ItemCourse                 ItemType = "course"
	ItemPackage                ItemType = "package"
	ItemCoachingSessions       ItemType = "coaching_sessions"
	ItemCourseCoachingSessions ItemType = "course_coaching_sessions"
)

const (
	PaymentProvider = "stripe"
	DefaultCurrency = "chf"
)

// VerifyRequest is what the checkout return page posts once the payment provider redirected the user back.
type VerifyRequest struct {
	SessionID       string            `json:"sessionId" validate:"required"`
	PaymentIntentID string            `json:"paymentIntentId"`
	PaymentStatus   string            `json:"paymentStatus" validate:"required,oneof=paid succeeded"`
	Amount          int64             `json:"amount" validate:"gte=0"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	CustomerEmail   string            `json:"customerEmail" validate:"omitempty,email"`
	Metadata        map[string]string `json:"metadata" validate:"required"`
}

// PaymentExternalID identifies the payment at the provider: the payment intent when known, else the checkout session.
func (r VerifyRequest) PaymentExternalID() string {
	if r.PaymentIntentID != "" {
		return r.PaymentIntentID
	}
	return r.SessionID
}

func (r VerifyRequest) PurchaseType() PurchaseType {
	return PurchaseType(r.Metadata["purchaseType"])
}

// Offering is a coaching offering bought in a coaching sessions purchase.
type Offering struct {
	CoachingOfferingID int     `json:"coachingOfferingId"`
	Quantity           int     `json:"quantity"`
	Title              string  `json:"title"`
	Duration           int     `json:"duration"`
	PricePerSession    float64 `json:"pricePerSession"`
}

// Item is one entry of the purchaseItems sent to the backend; which fields are set depends on PurchaseType.
type Item struct {
	PurchaseType       ItemType   `json:"purchaseType"`
	CourseSlug         string     `json:"courseSlug,omitempty"`
	WithCoaching       *bool      `json:"withCoaching,omitempty"`
	PackageID          int        `json:"packageId,omitempty"`
	SelectedCourseIDs  []int      `json:"selectedCourseIds,omitempty"`
	Offerings          []Offering `json:"offerings,omitempty"`
	LessonComponentIDs []string   `json:"lessonComponentIds,omitempty"`
}

type TransactionData struct {
	PaymentExternalID string            `json:"paymentExternalId"`
	PaymentProvider   string            `json:"paymentProvider"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	CustomerEmail     string            `json:"customerEmail"`
	PaymentStatus     string            `json:"paymentStatus"`
	Metadata          map[string]string `json:"metadata"`
}

// ProcessPurchase is the input of the processPurchase use case.
type ProcessPurchase struct {
	UserID          string          `json:"userId"`
	TransactionData TransactionData `json:"transactionData"`
	PurchaseType    PurchaseType    `json:"purchaseType"`
	PurchaseItems   []Item          `json:"purchaseItems"`
	CouponCode      string          `json:"couponCode,omitempty"`
}

type processed struct {
	TransactionID    interface{} `json:"transactionId"`
	AlreadyProcessed bool        `json:"alreadyProcessed"`
	Enrollments      []struct {
		CourseID         int  `json:"courseId"`
		CoachingIncluded bool `json:"coachingIncluded"`
	} `json:"enrollments"`
	CoachingSessions []struct {
		SessionID  int  `json:"sessionId"`
		OfferingID *int `json:"offeringId"`
		CourseID   *int `json:"courseId"`
	} `json:"coachingSessions"`
}

type Transaction struct {
	ID       interface{} `json:"id"`
	Amount   int64       `json:"amount"`
	Currency string      `json:"currency"`
}

type PurchasedItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result is returned to the checkout return page.
type Result struct {
	Success            bool                   `json:"success"`
	AlreadyProcessed   bool                   `json:"alreadyProcessed"`
	Transaction        Transaction            `json:"transaction"`
	PurchaseType       PurchaseType           `json:"purchaseType"`
	PurchaseIdentifier map[string]interface{} `json:"purchaseIdentifier"`
	CustomerEmail      string                 `json:"customerEmail"`
	PurchasedItems     []PurchasedItem        `json:"purchasedItems"`
}

// Purchase records a payment that was processed by the backend.
type Purchase struct {
	ID                string          `db:"id"`
	PaymentExternalID string          `db:"payment_external_id"`
	PaymentProvider   string          `db:"payment_provider"`
	UserID            string          `db:"user_id"`
	PurchaseType      PurchaseType    `db:"purchase_type"`
	CustomerEmail     string          `db:"-"`
	Result            json.RawMessage `db:"result"`
	ProcessedAt       time.Time       `db:"processed_at"`
}

type receiptData struct {
	CustomerName string
	PaymentID    string
	PurchaseType string
	Items        []string
	Locale       string
}
