/*
Package catalog provides JSON to Go service/task-template conversion.

PURPOSE:
  Converts JSON catalog definitions into engine.Service and
  engine.TaskTemplate values. Service obligations change with regulation,
  not with code releases - operations staff define the catalog in JSON and
  the engine materializes it into typed due-date rules.

JSON SCHEMA:
  {
    "services": [
      {
        "id": "gst-filing",
        "name": "GST Filing",
        "default_price": "1500.00",
        "tax_rate": "18",
        "tasks": [
          {
            "title": "File GSTR-1",
            "sort_order": 1,
            "day_of_month": 11,
            "offset": {"value": 0, "unit": "days"}
          },
          {
            "title": "Annual return",
            "due_month": "december",
            "due_day": 31
          }
        ]
      }
    ]
  }

VALIDATION:
  Each task may set at most one base-date rule (exact_date, due_month+due_day,
  weekday, day_of_month). Violations fail the whole load; a half-valid
  catalog is worse than none.

NOTE:
  Loading a catalog never retroactively alters already-materialized task
  instances; only future period instantiation sees the new templates.

SEE ALSO:
  - engine/duedate.go: DueRule resolution and parsing helpers
  - cmd/server: the "seed" command that installs a catalog
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type CatalogJSON struct {
	Services []ServiceJSON `json:"services"`
}

type ServiceJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	DefaultPrice string     `json:"default_price,omitempty"`
	TaxRate      string     `json:"tax_rate,omitempty"`
	Tasks        []TaskJSON `json:"tasks,omitempty"`
}

type TaskJSON struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	IsActive  *bool  `json:"is_active,omitempty"` // default true
	SortOrder int    `json:"sort_order,omitempty"`

	ExactDate  string `json:"exact_date,omitempty"`   // YYYY-MM-DD
	DueMonth   string `json:"due_month,omitempty"`    // name or number
	DueDay     int    `json:"due_day,omitempty"`      // with due_month
	Weekday    string `json:"weekday,omitempty"`      // name
	DayOfMonth int    `json:"day_of_month,omitempty"` // 1-based from period start

	Offset *OffsetJSON `json:"offset,omitempty"`
}

type OffsetJSON struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"` // days, weeks, months
}

// =============================================================================
// PARSING
// =============================================================================

// Parse converts catalog JSON into typed services and templates.
func Parse(data []byte) ([]engine.Service, []engine.TaskTemplate, error) {
	var cat CatalogJSON
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	var services []engine.Service
	var templates []engine.TaskTemplate
	now := time.Now().UTC()

	for _, sj := range cat.Services {
		if sj.ID == "" || sj.Name == "" {
			return nil, nil, fmt.Errorf("service requires id and name (got id=%q)", sj.ID)
		}
		svc := engine.Service{ID: sj.ID, Name: sj.Name, TaxRate: decimal.Zero, CreatedAt: now}
		if sj.DefaultPrice != "" {
			price, err := decimal.NewFromString(sj.DefaultPrice)
			if err != nil {
				return nil, nil, fmt.Errorf("service %s: bad default_price: %w", sj.ID, err)
			}
			svc.DefaultPrice = &price
		}
		if sj.TaxRate != "" {
			rate, err := decimal.NewFromString(sj.TaxRate)
			if err != nil {
				return nil, nil, fmt.Errorf("service %s: bad tax_rate: %w", sj.ID, err)
			}
			svc.TaxRate = rate
		}
		services = append(services, svc)

		for i, tj := range sj.Tasks {
			tpl, err := parseTask(sj.ID, i, tj, now)
			if err != nil {
				return nil, nil, err
			}
			templates = append(templates, tpl)
		}
	}
	return services, templates, nil
}

func parseTask(serviceID string, index int, tj TaskJSON, now time.Time) (engine.TaskTemplate, error) {
	var zero engine.TaskTemplate
	if tj.Title == "" {
		return zero, fmt.Errorf("service %s: task %d has no title", serviceID, index)
	}

	rule := engine.DueRule{}
	if tj.ExactDate != "" {
		d, err := engine.ParseDate(tj.ExactDate)
		if err != nil {
			return zero, fmt.Errorf("service %s: task %q: bad exact_date: %w", serviceID, tj.Title, err)
		}
		rule.ExactDate = &d
	}
	if tj.DueMonth != "" {
		m, err := engine.ParseMonth(tj.DueMonth)
		if err != nil {
			return zero, fmt.Errorf("service %s: task %q: %w", serviceID, tj.Title, err)
		}
		rule.DueMonth = &m
		rule.DueDay = tj.DueDay
	}
	if tj.Weekday != "" {
		wd, err := engine.ParseWeekday(tj.Weekday)
		if err != nil {
			return zero, fmt.Errorf("service %s: task %q: %w", serviceID, tj.Title, err)
		}
		rule.Weekday = &wd
	}
	rule.DayOfMonth = tj.DayOfMonth
	if tj.Offset != nil {
		rule.Offset = engine.Offset{Value: tj.Offset.Value, Unit: engine.OffsetUnit(tj.Offset.Unit)}
	}
	if err := rule.Validate(); err != nil {
		return zero, fmt.Errorf("service %s: task %q: %w", serviceID, tj.Title, err)
	}

	id := tj.ID
	if id == "" {
		id = uuid.NewString()
	}
	active := true
	if tj.IsActive != nil {
		active = *tj.IsActive
	}
	sortOrder := tj.SortOrder
	if sortOrder == 0 {
		sortOrder = index + 1
	}

	return engine.TaskTemplate{
		ID:        id,
		ServiceID: serviceID,
		Title:     tj.Title,
		IsActive:  active,
		SortOrder: sortOrder,
		Rule:      rule,
		CreatedAt: now,
	}, nil
}

// =============================================================================
// INSTALLATION
// =============================================================================

// LoadFile parses a catalog file.
func LoadFile(path string) ([]engine.Service, []engine.TaskTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Install upserts the catalog into the store in one transaction.
func Install(ctx context.Context, store obligation.TxStore, services []engine.Service, templates []engine.TaskTemplate) error {
	return store.WithTx(ctx, func(s obligation.Store) error {
		for _, svc := range services {
			if err := s.SaveService(ctx, svc); err != nil {
				return fmt.Errorf("failed to save service %s: %w", svc.ID, err)
			}
		}
		for _, tpl := range templates {
			if err := s.SaveTemplate(ctx, tpl); err != nil {
				return fmt.Errorf("failed to save template %s: %w", tpl.ID, err)
			}
		}
		return nil
	})
}
