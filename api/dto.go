/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures returned to the agenda web app. These types
  decouple the stored records from the external API contract.

CONVENTIONS:
  - Optional fields render as JSON null, never as zero values
  - Timestamps are RFC3339 in the feed's local timezone

SEE ALSO:
  - handlers.go: Uses these types
  - store/sqlite: Record types these are built from
*/
package api

import (
	"time"

	"github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"
)

// ParadeDTO represents a parade in API responses.
type ParadeDTO struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Description    *string  `json:"description"`
	Location       *string  `json:"location"`
	StartAt        *string  `json:"start_at"`
	EndAt          *string  `json:"end_at"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	FoundationYear *int64   `json:"foundation_year"`
	NeighborhoodID *int64   `json:"neighborhood_id"`
}

// ServiceDTO represents a service in API responses.
type ServiceDTO struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Description    *string  `json:"description"`
	Address        *string  `json:"address"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	NeighborhoodID *int64   `json:"neighborhood_id"`
	ServiceTypeID  *int64   `json:"service_type_id"`
}

// ServiceTypeDTO represents a service type in API responses.
type ServiceTypeDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NeighborhoodDTO represents a neighborhood in API responses.
type NeighborhoodDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SyncResponse is returned by the admin sync trigger.
type SyncResponse struct {
	Status     string `json:"status"`
	LastUpdate string `json:"last_update"`
}

// ParadesResponse wraps a parade listing with its pre-pagination total.
type ParadesResponse struct {
	Items []ParadeDTO `json:"items"`
	Total int         `json:"total"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func paradeDTO(p sqlite.Parade) ParadeDTO {
	return ParadeDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Location:       p.Location,
		StartAt:        formatTime(p.StartAt),
		EndAt:          formatTime(p.EndAt),
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		FoundationYear: p.FoundationYear,
		NeighborhoodID: p.NeighborhoodID,
	}
}

func serviceDTO(svc sqlite.Service) ServiceDTO {
	return ServiceDTO{
		ID:             svc.ID,
		Name:           svc.Name,
		Description:    svc.Description,
		Address:        svc.Address,
		Latitude:       svc.Latitude,
		Longitude:      svc.Longitude,
		NeighborhoodID: svc.NeighborhoodID,
		ServiceTypeID:  svc.ServiceTypeID,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
