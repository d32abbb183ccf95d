// Package checkout unlocks purchased content once a payment went through.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/usecase"
)

var (
	ErrNotFound = errors.New("purchase not found")

	nowFunc = time.Now // mockable

	errPaymentOfAnotherUser = &FailedError{Message: "payment belongs to another user"}
)

const processTimeout = 30 * time.Second

// FailedError is returned when the backend refused to process a purchase.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string { return "purchase processing failed: " + e.Message }

func IsFailed(err error) bool {
	_, ok := errors.Cause(err).(*FailedError)
	return ok
}

type Repository interface {
	// GetPurchase returns ErrNotFound when no purchase was recorded for the payment.
	GetPurchase(ctx context.Context, paymentExternalID string) (Purchase, error)
	SavePurchase(ctx context.Context, p Purchase) error
}

type Service struct {
	exec    usecase.Executor
	catalog *usecase.Catalog
	repo    Repository
	emails  core.EmailService
	logger  core.Logger
	group   singleflight.Group
}

func NewService(exec usecase.Executor, catalog *usecase.Catalog, repo Repository, emails core.EmailService, logger core.Logger) *Service {
	return &Service{exec: exec, catalog: catalog, repo: repo, emails: emails, logger: logger}
}

// VerifyAndUnlock has the backend process the purchase paid in req on behalf of buyer.
// Each payment is processed once: later calls return the recorded result with AlreadyProcessed set.
func (svc *Service) VerifyAndUnlock(ctx context.Context, buyer core.Person, req VerifyRequest, meta usecase.Meta) (Result, error) {
	if buyer.ID == "" {
		return Result{}, errors.New("checkout: anonymous buyer")
	}
	paymentID := req.PaymentExternalID()

	// the shared call outlives the request of the caller that started it
	v, err, _ := svc.group.Do(paymentID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
		defer cancel()
		res, err := svc.verifyAndUnlock(ctx, buyer, req, meta)
		return owned{owner: buyer.ID, res: res}, err
	})
	if err != nil {
		return Result{}, err
	}
	o := v.(owned)
	if o.owner != buyer.ID {
		return Result{}, errPaymentOfAnotherUser
	}
	return o.res, nil
}

// owned is a shared verifyAndUnlock result along with the buyer it was computed for.
type owned struct {
	owner string
	res   Result
}

func (svc *Service) verifyAndUnlock(ctx context.Context, buyer core.Person, req VerifyRequest, meta usecase.Meta) (Result, error) {
	paymentID := req.PaymentExternalID()

	p, err := svc.repo.GetPurchase(ctx, paymentID)
	switch {
	case err == nil:
		if p.UserID != buyer.ID {
			return Result{}, errPaymentOfAnotherUser
		}
		var res Result
		if err := json.Unmarshal(p.Result, &res); err != nil {
			return Result{}, errors.Wrap(err, "decoding recorded purchase")
		}
		res.AlreadyProcessed = true
		return res, nil
	case errors.Cause(err) != ErrNotFound:
		return Result{}, errors.Wrap(err, "getting purchase")
	}

	pt := req.PurchaseType()
	if pt == "" {
		return Result{}, metadataError("purchaseType", "this field is required")
	}
	items, err := svc.buildItems(ctx, pt, req.Metadata, meta)
	if err != nil {
		return Result{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	// the backend expects the payment intent status, not the checkout session one
	status := req.PaymentStatus
	if status == "paid" {
		status = "succeeded"
	}
	input := ProcessPurchase{
		UserID: buyer.ID,
		TransactionData: TransactionData{
			PaymentExternalID: paymentID,
			PaymentProvider:   PaymentProvider,
			Amount:            req.Amount,
			Currency:          currency,
			CustomerEmail:     req.CustomerEmail,
			PaymentStatus:     status,
			Metadata:          req.Metadata,
		},
		PurchaseType:  pt,
		PurchaseItems: items,
		CouponCode:    req.Metadata["couponCode"],
	}

	pr, err := svc.process(ctx, input, meta)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Success:          true,
		AlreadyProcessed: pr.AlreadyProcessed,
		Transaction: Transaction{
			ID:       pr.TransactionID,
			Amount:   req.Amount,
			Currency: strings.ToUpper(currency),
		},
		PurchaseType:       pt,
		PurchaseIdentifier: purchaseIdentifier(pt, req.Metadata),
		CustomerEmail:      req.CustomerEmail,
		PurchasedItems:     purchasedItems(pt, pr),
	}

	svc.record(ctx, buyer, paymentID, res)
	if !res.AlreadyProcessed {
		svc.sendReceipt(buyer, paymentID, meta.Locale, res)
	}
	return res, nil
}

func (svc *Service) process(ctx context.Context, input ProcessPurchase, meta usecase.Meta) (processed, error) {
	uc, err := svc.catalog.Get(usecase.AppPlatform, "processPurchase")
	if err != nil {
		return processed{}, err
	}
	body, err := json.Marshal(input)
	if err != nil {
		return processed{}, errors.Wrap(err, "encoding purchase")
	}

	resp, err := svc.exec.Execute(ctx, uc, body, meta)
	if err != nil {
		return processed{}, errors.Wrap(err, "processing purchase")
	}
	if !resp.Succeeded() {
		msg := "Unknown error from backend"
		if resp.Error != nil {
			switch {
			case resp.Error.Message != "":
				msg = resp.Error.Message
			case resp.Error.Type != "":
				msg = fmt.Sprintf("Error type: %s", resp.Error.Type)
			}
		}
		return processed{}, &FailedError{Message: msg}
	}

	// some backends nest the payload one level deeper
	data := resp.Data
	var nested struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && bytes.HasPrefix(bytes.TrimSpace(nested.Data), []byte("{")) {
		data = nested.Data
	}
	var pr processed
	if err := json.Unmarshal(data, &pr); err != nil {
		return processed{}, errors.Wrap(err, "decoding processed purchase")
	}
	return pr, nil
}

func (svc *Service) record(ctx context.Context, buyer core.Person, paymentID string, res Result) {
	b, err := json.Marshal(res)
	if err == nil {
		err = svc.repo.SavePurchase(ctx, Purchase{
			ID:                uuid.NewString(),
			PaymentExternalID: paymentID,
			PaymentProvider:   PaymentProvider,
			UserID:            buyer.ID,
			PurchaseType:      res.PurchaseType,
			CustomerEmail:     res.CustomerEmail,
			Result:            b,
			ProcessedAt:       nowFunc().UTC(),
		})
	}
	if err != nil {
		svc.logger.Error(fmt.Sprintf("checkout: recording purchase %s: %v", paymentID, err), err, buyer)
	}
}

func (svc *Service) sendReceipt(buyer core.Person, paymentID, locale string, res Result) {
	to := res.CustomerEmail
	if to == "" {
		to = buyer.Email
	}
	if to == "" {
		return
	}

	items := make([]string, 0, len(res.PurchasedItems))
	for _, it := range res.PurchasedItems {
		items = append(items, it.Name+" ("+it.Description+")")
	}
	svc.emails.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: buyer.Username, Address: to}},
		Subject:      "Your purchase receipt",
		TemplateName: "purchase_receipt",
		TemplateData: receiptData{
			CustomerName: buyer.Username,
			PaymentID:    paymentID,
			PurchaseType: string(res.PurchaseType),
			Items:        items,
			Locale:       locale,
		},
	})
}
