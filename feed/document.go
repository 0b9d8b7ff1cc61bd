/*
Package feed implements the carnival feed reconciliation engine.

PURPOSE:
  Ingests the city's carnival batch JSON feed into the local store,
  idempotently and incrementally. The pipeline is a strict one-way flow:

    Fetcher -> change detector gate -> normalizer -> reconciler

  Each stage is independent: the fetcher only talks HTTP, the detector is
  a pure comparison against stored feed state, the normalizer coerces the
  feed's loosely typed fields into store records, and the reconciler
  upserts the records inside one transaction.

ERROR POLICY:
  Only fetch failures abort a sync (surfaced as *FetchError). Per-field
  parse failures and dangling references are absorbed locally so one
  malformed upstream record never blocks the rest of the batch.

SEE ALSO:
  - normalize.go: Field coercion and batch building
  - sync.go: The Syncer orchestration and reconciliation pass
  - store/sqlite: Persistence
*/
package feed

import "encoding/json"

// Document is the parsed upstream batch feed. Numeric-looking fields are
// kept as json.RawMessage because the feed is inconsistent about sending
// numbers versus numeric strings.
type Document struct {
	LastUpdate        string             `json:"last_update"`
	Neighborhoods     []NeighborhoodItem `json:"neighborhoods"`
	ServiceTypes      []ServiceTypeItem  `json:"service_types"`
	Services          []ServiceItem      `json:"services"`
	Parades           []ParadeItem       `json:"parades"`
	StreetAttractions []ParadeItem       `json:"street_attractions"`
}

// ParadeItems returns the parade array to ingest. The feed publishes
// either "parades" or the legacy "street_attractions" alias; the first
// present array wins, they are never merged.
func (d *Document) ParadeItems() []ParadeItem {
	if len(d.Parades) > 0 {
		return d.Parades
	}
	return d.StreetAttractions
}

// NeighborhoodItem is a raw neighborhood entry.
type NeighborhoodItem struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
}

// ServiceTypeItem is a raw service type entry. Some feed revisions carry
// the display name under "title" instead of "name".
type ServiceTypeItem struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Title string          `json:"title"`
}

// ServiceItem is a raw service entry.
type ServiceItem struct {
	ID              json.RawMessage `json:"id"`
	Title           string          `json:"title"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Address         string          `json:"address"`
	Lat             json.RawMessage `json:"lat"`
	Lng             json.RawMessage `json:"lng"`
	NeighborhoodID  json.RawMessage `json:"neighborhood_id"`
	ServiceTypeName string          `json:"service_type_name"`
}

// ParadeItem is a raw parade entry. Date carries the parade day; the
// optional ParadeTime/EndTime fields carry time-of-day only.
type ParadeItem struct {
	ID             json.RawMessage `json:"id"`
	Title          string          `json:"title"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Address        string          `json:"address"`
	Date           string          `json:"date"`
	ParadeTime     string          `json:"parade_time"`
	EndTime        string          `json:"end_time"`
	Lat            json.RawMessage `json:"lat"`
	Lng            json.RawMessage `json:"lng"`
	FoundationYear json.RawMessage `json:"foundation_year"`
	NeighborhoodID json.RawMessage `json:"neighborhood_id"`
}
