package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/usecase"
	testutil "github.com/maany-shr/eclass/tests"
)

type purchaseRepoMock struct {
	mu        sync.Mutex
	purchases map[string]Purchase
	saveErr   error
}

func (r *purchaseRepoMock) GetPurchase(_ context.Context, id string) (Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	return p, nil
}

func (r *purchaseRepoMock) SavePurchase(_ context.Context, p Purchase) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	r.purchases[p.PaymentExternalID] = p
	r.mu.Unlock()
	return nil
}

type emailMock struct {
	sent []*core.EmailMessage
}

func (m *emailMock) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}

type fixture struct {
	svc    *Service
	exec   *testutil.Executor
	repo   *purchaseRepoMock
	emails *emailMock
	logger *testutil.Logger
}

func setup(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })

	f := fixture{
		exec:   testutil.NewExecutor(),
		repo:   &purchaseRepoMock{purchases: make(map[string]Purchase)},
		emails: new(emailMock),
		logger: new(testutil.Logger),
	}
	f.svc = NewService(f.exec, usecase.DefaultCatalog(), f.repo, f.emails, f.logger)
	return f
}

var buyer = core.Person{ID: "u-1", Username: "ana", Email: "ana@test.cd"}

func courseRequest() VerifyRequest {
	return VerifyRequest{
		SessionID:       "cs_test_1",
		PaymentIntentID: "pi_1",
		PaymentStatus:   "paid",
		Amount:          4900,
		CustomerEmail:   "billing@test.cd",
		Metadata:        map[string]string{"purchaseType": string(CoursePurchaseWithCoaching), "courseSlug": "go-101"},
	}
}

func TestService_VerifyAndUnlock(t *testing.T) {
	f := setup(t)
	f.exec.Succeed(t, "processPurchase", map[string]interface{}{
		"transactionId":    17,
		"alreadyProcessed": false,
		"enrollments":      []map[string]interface{}{{"courseId": 3, "coachingIncluded": true}},
	})
	meta := usecase.Meta{IDToken: "tok", SessionID: "s-1", Locale: "de"}

	res, err := f.svc.VerifyAndUnlock(context.Background(), buyer, courseRequest(), meta)
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, Transaction{ID: float64(17), Amount: 4900, Currency: "CHF"}, res.Transaction)
	assert.Equal(t, map[string]interface{}{"courseSlug": "go-101"}, res.PurchaseIdentifier)
	assert.Equal(t, []PurchasedItem{{Name: "Course 3", Description: "With coaching"}}, res.PurchasedItems)

	calls := f.exec.CallsTo("processPurchase")
	if assert.Len(t, calls, 1) {
		assert.Equal(t, meta, calls[0].Meta)
		var input ProcessPurchase
		assert.NoError(t, json.Unmarshal(calls[0].Input, &input))
		assert.Equal(t, "u-1", input.UserID)
		assert.Equal(t, "pi_1", input.TransactionData.PaymentExternalID)
		assert.Equal(t, "succeeded", input.TransactionData.PaymentStatus)
		assert.Equal(t, "chf", input.TransactionData.Currency)
		if assert.Len(t, input.PurchaseItems, 1) {
			assert.Equal(t, ItemCourse, input.PurchaseItems[0].PurchaseType)
			assert.True(t, *input.PurchaseItems[0].WithCoaching)
		}
	}

	if assert.Len(t, f.emails.sent, 1) {
		msg := f.emails.sent[0]
		assert.Equal(t, "billing@test.cd", msg.To[0].Address)
		assert.Equal(t, "purchase_receipt", msg.TemplateName)
		assert.Equal(t, []string{"Course 3 (With coaching)"}, msg.TemplateData.(receiptData).Items)
	}

	p := f.repo.purchases["pi_1"]
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), p.ProcessedAt)

	// second call is answered from the recorded purchase
	again, err := f.svc.VerifyAndUnlock(context.Background(), buyer, courseRequest(), meta)
	assert.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, res.PurchasedItems, again.PurchasedItems)
	assert.Len(t, f.exec.CallsTo("processPurchase"), 1)
	assert.Len(t, f.emails.sent, 1)

	other := core.Person{ID: "u-2"}
	_, err = f.svc.VerifyAndUnlock(context.Background(), other, courseRequest(), meta)
	assert.True(t, IsFailed(err))
}

// blockingExecutor holds processPurchase until release is closed.
type blockingExecutor struct {
	*testutil.Executor
	started chan struct{}
	release chan struct{}
}

func (e *blockingExecutor) Execute(ctx context.Context, uc usecase.UseCase, input json.RawMessage, meta usecase.Meta) (usecase.Response, error) {
	if uc.Name == "processPurchase" {
		close(e.started)
		<-e.release
		if err := ctx.Err(); err != nil {
			return usecase.Response{}, err
		}
	}
	return e.Executor.Execute(ctx, uc, input, meta)
}

func TestService_VerifyAndUnlockConcurrent(t *testing.T) {
	f := setup(t)
	f.exec.Succeed(t, "processPurchase", map[string]interface{}{
		"transactionId": 17,
		"enrollments":   []map[string]interface{}{{"courseId": 3, "coachingIncluded": true}},
	})
	exec := &blockingExecutor{Executor: f.exec, started: make(chan struct{}), release: make(chan struct{})}
	f.svc = NewService(exec, usecase.DefaultCatalog(), f.repo, f.emails, f.logger)

	type outcome struct {
		res Result
		err error
	}
	call := func(ctx context.Context, p core.Person) <-chan outcome {
		out := make(chan outcome, 1)
		go func() {
			res, err := f.svc.VerifyAndUnlock(ctx, p, courseRequest(), usecase.Meta{})
			out <- outcome{res, err}
		}()
		return out
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := call(ctx, buyer)
	<-exec.started
	again := call(context.Background(), buyer)
	other := call(context.Background(), core.Person{ID: "u-2"})
	time.Sleep(50 * time.Millisecond) // let both join the running call

	// the buyer who started the call goes away
	cancel()
	close(exec.release)

	got := <-first
	assert.NoError(t, got.err)
	assert.True(t, got.res.Success)

	got = <-again
	assert.NoError(t, got.err)
	assert.Equal(t, []PurchasedItem{{Name: "Course 3", Description: "With coaching"}}, got.res.PurchasedItems)

	got = <-other
	assert.True(t, IsFailed(got.err))
	assert.EqualError(t, got.err, "purchase processing failed: payment belongs to another user")
	assert.Empty(t, got.res.PurchasedItems)

	assert.Len(t, f.exec.CallsTo("processPurchase"), 1)
	assert.Len(t, f.emails.sent, 1)
}

func TestService_VerifyAndUnlockFailures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f fixture)
		req     func() VerifyRequest
		check   func(t *testing.T, err error)
	}{
		{
			name: "backend refusal",
			prepare: func(f fixture) {
				f.exec.Responses["processPurchase"] = usecase.Failure(usecase.ErrorTypeValidation, "processPurchase", "coupon expired")
			},
			req: courseRequest,
			check: func(t *testing.T, err error) {
				assert.True(t, IsFailed(err))
				assert.EqualError(t, err, "purchase processing failed: coupon expired")
			},
		},
		{
			name: "backend refusal without message",
			prepare: func(f fixture) {
				f.exec.Responses["processPurchase"] = usecase.Failure(usecase.ErrorTypeConflict, "processPurchase", "")
			},
			req: courseRequest,
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "purchase processing failed: Error type: ConflictError")
			},
		},
		{
			name: "transport failure",
			prepare: func(f fixture) {
				f.exec.Errors["processPurchase"] = errors.New("connection refused")
			},
			req: courseRequest,
			check: func(t *testing.T, err error) {
				assert.False(t, IsFailed(err))
				assert.EqualError(t, err, "processing purchase: connection refused")
			},
		},
		{
			name:    "missing purchase type",
			prepare: func(fixture) {},
			req: func() VerifyRequest {
				r := courseRequest()
				delete(r.Metadata, "purchaseType")
				return r
			},
			check: func(t *testing.T, err error) {
				assert.True(t, core.IsValidationError(err))
			},
		},
		{
			name:    "unknown purchase type",
			prepare: func(fixture) {},
			req: func() VerifyRequest {
				r := courseRequest()
				r.Metadata["purchaseType"] = "Gift"
				return r
			},
			check: func(t *testing.T, err error) {
				assert.True(t, core.IsValidationError(err))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			tt.prepare(f)
			_, err := f.svc.VerifyAndUnlock(context.Background(), buyer, tt.req(), usecase.Meta{})
			tt.check(t, err)
			assert.Empty(t, f.repo.purchases)
			assert.Empty(t, f.emails.sent)
		})
	}
}

func TestService_CoachingSessions(t *testing.T) {
	f := setup(t)
	f.exec.Succeed(t, "listCoachingOfferings", map[string]interface{}{
		"offerings": []map[string]interface{}{
			{"id": 1, "name": "Intro call", "duration": 30, "price": 40},
			{"id": 2, "name": "Deep dive", "duration": 90, "price": 110.5},
		},
	})
	// nested payloads are accepted
	f.exec.Succeed(t, "processPurchase", map[string]interface{}{
		"data": map[string]interface{}{
			"transactionId":    "tx-9",
			"coachingSessions": []map[string]interface{}{{"sessionId": 5, "offeringId": 2, "courseId": nil}},
		},
	})

	req := VerifyRequest{
		SessionID:     "cs_2",
		PaymentStatus: "succeeded",
		Currency:      "eur",
		Metadata: map[string]string{
			"purchaseType":  string(CoachingSessionPurchase),
			"offerings":     "1:2,2:1",
			"coachUsername": "bob",
		},
	}
	res, err := f.svc.VerifyAndUnlock(context.Background(), core.Person{ID: "u-1"}, req, usecase.Meta{})
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "tx-9", res.Transaction.ID)
	assert.Equal(t, "EUR", res.Transaction.Currency)
	assert.Equal(t, []PurchasedItem{{Name: "Coaching Session 5", Description: "Coaching session"}}, res.PurchasedItems)
	assert.Equal(t, map[string]interface{}{"offeringId": 1, "coachUsername": "bob"}, res.PurchaseIdentifier)
	assert.Empty(t, f.emails.sent, "no address to send the receipt to")

	var input ProcessPurchase
	assert.NoError(t, json.Unmarshal(f.exec.CallsTo("processPurchase")[0].Input, &input))
	assert.Equal(t, "cs_2", input.TransactionData.PaymentExternalID)
	assert.Equal(t, []Offering{
		{CoachingOfferingID: 1, Quantity: 2, Title: "Intro call", Duration: 30, PricePerSession: 40},
		{CoachingOfferingID: 2, Quantity: 1, Title: "Deep dive", Duration: 90, PricePerSession: 110.5},
	}, input.PurchaseItems[0].Offerings)
}

func TestService_RecordFailureIsLogged(t *testing.T) {
	f := setup(t)
	f.repo.saveErr = errors.New("db down")
	f.exec.Succeed(t, "processPurchase", map[string]interface{}{"transactionId": 1})

	_, err := f.svc.VerifyAndUnlock(context.Background(), buyer, courseRequest(), usecase.Meta{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"ERROR: checkout: recording purchase pi_1: db down"}, f.logger.Messages())
}

func TestParseOfferings(t *testing.T) {
	tests := []struct {
		offerings, quantity string
		want                []Offering
		wantErr             bool
	}{
		{offerings: "7", want: []Offering{{CoachingOfferingID: 7, Quantity: 1}}},
		{offerings: "7", quantity: "3", want: []Offering{{CoachingOfferingID: 7, Quantity: 3}}},
		{offerings: "7:2", want: []Offering{{CoachingOfferingID: 7, Quantity: 2}}},
		{offerings: "1:3, 2:2", want: []Offering{{CoachingOfferingID: 1, Quantity: 3}, {CoachingOfferingID: 2, Quantity: 2}}},
		{offerings: "", wantErr: true},
		{offerings: "x", wantErr: true},
		{offerings: "7", quantity: "0", wantErr: true},
		{offerings: "1:3,2", wantErr: true},
		{offerings: "1:-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.offerings+"/"+tt.quantity, func(t *testing.T) {
			got, err := parseOfferings(tt.offerings, tt.quantity)
			if tt.wantErr {
				assert.True(t, core.IsValidationError(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildItems(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	items, err := f.svc.buildItems(ctx, PackagePurchase, map[string]string{"packageId": "4", "selectedCourseIds": "1,2"}, usecase.Meta{})
	assert.NoError(t, err)
	if assert.Len(t, items, 1) {
		assert.Equal(t, ItemPackage, items[0].PurchaseType)
		assert.Equal(t, 4, items[0].PackageID)
		assert.Equal(t, []int{1, 2}, items[0].SelectedCourseIDs)
		assert.False(t, *items[0].WithCoaching)
	}

	items, err = f.svc.buildItems(ctx, CourseCoachingSessionPurchase, map[string]string{"courseSlug": "go", "lessonComponentIds": "a,b"}, usecase.Meta{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items[0].LessonComponentIDs)

	_, err = f.svc.buildItems(ctx, PackagePurchase, map[string]string{"packageId": "x"}, usecase.Meta{})
	assert.True(t, core.IsValidationError(err))

	_, err = f.svc.buildItems(ctx, CoachingSessionPurchase, map[string]string{"offerings": "9"}, usecase.Meta{})
	assert.Error(t, err, "offerings cannot be listed")
}
