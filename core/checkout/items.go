package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/usecase"
)

func metadataError(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: "metadata." + field, Error: msg})
}

func splitInts(field, s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, metadataError(field, fmt.Sprintf("invalid id %q", p))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitStrings(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func positive(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil && n > 0
}

// parseOfferings reads "id", "id:qty" or "id:qty,id:qty". A bare id takes its quantity from quantity (default 1).
func parseOfferings(offerings, quantity string) ([]Offering, error) {
	if offerings == "" {
		return nil, metadataError("offerings", "this field is required")
	}

	if !strings.Contains(offerings, ":") {
		id, ok := positive(offerings)
		if !ok {
			return nil, metadataError("offerings", fmt.Sprintf("invalid offering id %q", offerings))
		}
		qty := 1
		if quantity != "" {
			if qty, ok = positive(quantity); !ok {
				return nil, metadataError("quantity", fmt.Sprintf("invalid quantity %q", quantity))
			}
		}
		return []Offering{{CoachingOfferingID: id, Quantity: qty}}, nil
	}

	var out []Offering
	for i, pair := range strings.Split(offerings, ",") {
		idStr, qtyStr, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found {
			return nil, metadataError("offerings", fmt.Sprintf("position %d: expected \"id:quantity\", got %q", i, pair))
		}
		id, okID := positive(idStr)
		qty, okQty := positive(qtyStr)
		if !okID || !okQty {
			return nil, metadataError("offerings", fmt.Sprintf("position %d: invalid values %q", i, pair))
		}
		out = append(out, Offering{CoachingOfferingID: id, Quantity: qty})
	}
	return out, nil
}

type coachingOffering struct {
	ID       json.Number `json:"id"`
	Name     string      `json:"name"`
	Duration int         `json:"duration"`
	Price    float64     `json:"price"`
}

// offeringDetails fetches the coaching offerings so bought sessions carry their title, duration and price.
func (svc *Service) offeringDetails(ctx context.Context, parsed []Offering, meta usecase.Meta) ([]Offering, error) {
	uc, err := svc.catalog.Get(usecase.AppPlatform, "listCoachingOfferings")
	if err != nil {
		return nil, err
	}
	resp, err := svc.exec.Execute(ctx, uc, json.RawMessage("{}"), meta)
	if err != nil {
		return nil, errors.Wrap(err, "listing coaching offerings")
	}
	if !resp.Succeeded() {
		return nil, errors.Errorf("listing coaching offerings: %v", resp.Error)
	}
	var data struct {
		Offerings []coachingOffering `json:"offerings"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, errors.Wrap(err, "decoding coaching offerings")
	}

	byID := make(map[string]coachingOffering, len(data.Offerings))
	for _, o := range data.Offerings {
		byID[o.ID.String()] = o
	}
	out := make([]Offering, 0, len(parsed))
	for _, p := range parsed {
		o, ok := byID[strconv.Itoa(p.CoachingOfferingID)]
		if !ok {
			return nil, metadataError("offerings", fmt.Sprintf("coaching offering %d not found", p.CoachingOfferingID))
		}
		p.Title, p.Duration, p.PricePerSession = o.Name, o.Duration, o.Price
		out = append(out, p)
	}
	return out, nil
}

func (svc *Service) buildItems(ctx context.Context, pt PurchaseType, md map[string]string, meta usecase.Meta) ([]Item, error) {
	withCoaching := func(b bool) *bool { return &b }

	switch pt {
	case CoursePurchase, CoursePurchaseWithCoaching:
		if md["courseSlug"] == "" {
			return nil, metadataError("courseSlug", "this field is required")
		}
		return []Item{{
			PurchaseType: ItemCourse,
			CourseSlug:   md["courseSlug"],
			WithCoaching: withCoaching(pt == CoursePurchaseWithCoaching),
		}}, nil

	case PackagePurchase, PackagePurchaseWithCoaching:
		id, ok := positive(md["packageId"])
		if !ok {
			return nil, metadataError("packageId", "must be a positive number")
		}
		selected, err := splitInts("selectedCourseIds", md["selectedCourseIds"])
		if err != nil {
			return nil, err
		}
		return []Item{{
			PurchaseType:      ItemPackage,
			PackageID:         id,
			SelectedCourseIDs: selected,
			WithCoaching:      withCoaching(pt == PackagePurchaseWithCoaching),
		}}, nil

	case CoachingSessionPurchase:
		raw := md["offerings"]
		if raw == "" {
			raw = md["coachingOfferingId"]
		}
		parsed, err := parseOfferings(raw, md["quantity"])
		if err != nil {
			return nil, err
		}
		offerings, err := svc.offeringDetails(ctx, parsed, meta)
		if err != nil {
			return nil, err
		}
		return []Item{{PurchaseType: ItemCoachingSessions, Offerings: offerings}}, nil

	case CourseCoachingSessionPurchase:
		if md["courseSlug"] == "" {
			return nil, metadataError("courseSlug", "this field is required")
		}
		return []Item{{
			PurchaseType:       ItemCourseCoachingSessions,
			CourseSlug:         md["courseSlug"],
			LessonComponentIDs: splitStrings(md["lessonComponentIds"]),
		}}, nil
	}
	return nil, metadataError("purchaseType", fmt.Sprintf("unknown purchase type %q", pt))
}

// purchaseIdentifier tells the return page where to send the user next.
func purchaseIdentifier(pt PurchaseType, md map[string]string) map[string]interface{} {
	switch pt {
	case CoursePurchase, CoursePurchaseWithCoaching:
		return map[string]interface{}{"courseSlug": md["courseSlug"]}
	case PackagePurchase, PackagePurchaseWithCoaching:
		id, _ := strconv.Atoi(md["packageId"])
		return map[string]interface{}{"packageId": id}
	case CoachingSessionPurchase:
		raw := md["coachingOfferingId"]
		if raw == "" {
			raw, _, _ = strings.Cut(md["offerings"], ":")
		}
		id, _ := strconv.Atoi(raw)
		var coach interface{}
		if u := md["coachUsername"]; u != "" {
			coach = u
		}
		return map[string]interface{}{"offeringId": id, "coachUsername": coach}
	case CourseCoachingSessionPurchase:
		return map[string]interface{}{
			"courseSlug":         md["courseSlug"],
			"lessonComponentIds": splitStrings(md["lessonComponentIds"]),
		}
	}
	return map[string]interface{}{}
}

func purchasedItems(pt PurchaseType, p processed) []PurchasedItem {
	var items []PurchasedItem
	if pt == CoachingSessionPurchase || pt == CourseCoachingSessionPurchase {
		for _, cs := range p.CoachingSessions {
			desc := "Coaching session"
			if cs.CourseID != nil {
				desc = "Course coaching session"
			}
			items = append(items, PurchasedItem{Name: fmt.Sprintf("Coaching Session %d", cs.SessionID), Description: desc})
		}
		if len(items) == 0 {
			items = []PurchasedItem{{Name: "Coaching Sessions", Description: "Course coaching sessions purchased"}}
		}
		return items
	}

	items = []PurchasedItem{}
	for _, e := range p.Enrollments {
		desc := "Course access"
		if e.CoachingIncluded {
			desc = "With coaching"
		}
		items = append(items, PurchasedItem{Name: fmt.Sprintf("Course %d", e.CourseID), Description: desc})
	}
	return items
}
